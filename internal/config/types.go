package config

// Default values applied when the config file leaves a field unset.
const (
	DefaultLogLevel       = "info"
	DefaultRequestTimeout = 30000 // ms
	DefaultPollInterval   = 1000  // ms
	DefaultReconnectDelay = 5000  // ms
	DefaultDialTimeout    = 10000 // ms
	DefaultDiagLogSize    = 256
)

// Config represents the main configuration structure
type Config struct {
	LogLevel       string       `json:"logLevel"`
	RequestTimeout int          `json:"requestTimeout"` // ms - timeout for HTTP requests
	PollInterval   int          `json:"pollInterval"`   // ms - polling fallback cadence
	ReconnectDelay int          `json:"reconnectDelay"` // ms - delay before a reconnect attempt
	DialTimeout    int          `json:"dialTimeout"`    // ms - WebSocket handshake timeout
	DiagLogSize    int          `json:"diagLogSize"`    // entries kept in the diagnostic error log
	Feeds          []FeedConfig `json:"feeds"`
}

// FeedConfig represents a single update feed to watch
type FeedConfig struct {
	Name       string `json:"name"`
	SocketURL  string `json:"socketUrl"`
	PollingURL string `json:"pollingUrl"`       // empty disables the polling fallback
	Filter     string `json:"filter,omitempty"` // optional JS predicate over update items
}
