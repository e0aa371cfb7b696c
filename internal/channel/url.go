package channel

import "net/url"

// ToWebSocketURL converts an absolute HTTP(S) URL into the matching
// WebSocket-scheme equivalent: https becomes wss, http becomes ws. Host and
// query are preserved; a root path collapses to empty. Parse failures
// propagate unmodified.
func ToWebSocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}

	path := u.Path
	if path == "/" {
		path = ""
	}

	converted := scheme + "://" + u.Host + path
	if u.RawQuery != "" {
		converted += "?" + u.RawQuery
	}
	return converted, nil
}
