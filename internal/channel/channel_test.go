package channel

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{}

type transportError struct {
	id      string
	message string
}

// socketServer runs handler for every upgraded connection and counts
// handshakes.
func socketServer(t *testing.T, handler func(conn *websocket.Conn, attempt int64)) (*httptest.Server, *int64) {
	t.Helper()
	var handshakes int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		attempt := atomic.AddInt64(&handshakes, 1)
		handler(conn, attempt)
	}))
	t.Cleanup(srv.Close)
	return srv, &handshakes
}

func testOptions() Options {
	return Options{
		ReconnectDelay: 50 * time.Millisecond,
		PollInterval:   20 * time.Millisecond,
		DialTimeout:    time.Second,
	}
}

func waitUpdate(t *testing.T, updates <-chan string) string {
	t.Helper()
	select {
	case u := <-updates:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
		return ""
	}
}

func TestOpen_DeliversUpdatesInOrder(t *testing.T) {
	srv, _ := socketServer(t, func(conn *websocket.Conn, attempt int64) {
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"seq":1}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"seq":2}`))
		// Keep the connection open until the client goes away
		conn.ReadMessage()
	})

	updates := make(chan string, 16)
	teardown, err := Open(srv.URL, "", func(item json.RawMessage) {
		updates <- string(item)
	}, nil, testOptions(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer teardown()

	if got := waitUpdate(t, updates); got != `{"seq":1}` {
		t.Errorf("first update = %s", got)
	}
	if got := waitUpdate(t, updates); got != `{"seq":2}` {
		t.Errorf("second update = %s", got)
	}
}

func TestReconnect_AfterAbnormalClose(t *testing.T) {
	srv, handshakes := socketServer(t, func(conn *websocket.Conn, attempt int64) {
		if attempt == 1 {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"attempt":1}`))
			// Drop the TCP connection without a close frame: the
			// client must treat this as an abnormal closure (1006).
			conn.UnderlyingConn().Close()
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"attempt":2}`))
		conn.ReadMessage()
	})

	updates := make(chan string, 16)
	transportErrors := make(chan transportError, 16)
	teardown, err := Open(srv.URL, "", func(item json.RawMessage) {
		updates <- string(item)
	}, func(id, message string) {
		transportErrors <- transportError{id: id, message: message}
	}, testOptions(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer teardown()

	if got := waitUpdate(t, updates); got != `{"attempt":1}` {
		t.Errorf("pre-close update = %s", got)
	}

	select {
	case te := <-transportErrors:
		if te.id != TransportErrorID {
			t.Errorf("transport error id = %q, want %q", te.id, TransportErrorID)
		}
		if te.message == "" {
			t.Error("transport error message is empty")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transport error")
	}

	// Updates sent after reconnection must still arrive
	if got := waitUpdate(t, updates); got != `{"attempt":2}` {
		t.Errorf("post-reconnect update = %s", got)
	}
	if n := atomic.LoadInt64(handshakes); n != 2 {
		t.Errorf("handshakes = %d, want 2", n)
	}

	select {
	case te := <-transportErrors:
		t.Errorf("unexpected second transport error: %+v", te)
	default:
	}
}

func TestReconnect_AfterServerInternalError(t *testing.T) {
	srv, handshakes := socketServer(t, func(conn *websocket.Conn, attempt int64) {
		if attempt == 1 {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "boom"),
				time.Now().Add(time.Second))
			conn.Close()
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"ok":true}`))
		conn.ReadMessage()
	})

	updates := make(chan string, 16)
	teardown, err := Open(srv.URL, "", func(item json.RawMessage) {
		updates <- string(item)
	}, nil, testOptions(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer teardown()

	if got := waitUpdate(t, updates); got != `{"ok":true}` {
		t.Errorf("post-reconnect update = %s", got)
	}
	if n := atomic.LoadInt64(handshakes); n != 2 {
		t.Errorf("handshakes = %d, want 2", n)
	}
}

func TestNormalClose_NoReconnect(t *testing.T) {
	srv, handshakes := socketServer(t, func(conn *websocket.Conn, attempt int64) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
			time.Now().Add(time.Second))
		conn.Close()
	})

	transportErrors := make(chan transportError, 16)
	teardown, err := Open(srv.URL, "", func(json.RawMessage) {}, func(id, message string) {
		transportErrors <- transportError{id: id, message: message}
	}, testOptions(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer teardown()

	// Give a would-be reconnect time to fire
	time.Sleep(200 * time.Millisecond)

	if n := atomic.LoadInt64(handshakes); n != 1 {
		t.Errorf("handshakes = %d, want 1 (normal close must not reconnect)", n)
	}
	select {
	case te := <-transportErrors:
		t.Errorf("unexpected transport error on normal close: %+v", te)
	default:
	}
}

func TestFallback_WhenSocketNeverConnects(t *testing.T) {
	var polls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/feed":
			// No upgrade: the WebSocket handshake fails here
			http.Error(w, "no websocket", http.StatusBadRequest)
		case "/poll":
			w.Header().Set("Content-Type", "application/json")
			if atomic.AddInt64(&polls, 1) == 1 {
				w.Write([]byte(`{"timestamp":100,"updates":[{"n":1},{"n":2}]}`))
				return
			}
			w.Write([]byte(`{"timestamp":100,"updates":[]}`))
		}
	}))
	defer srv.Close()

	updates := make(chan string, 16)
	teardown, err := Open(srv.URL+"/feed", srv.URL+"/poll", func(item json.RawMessage) {
		updates <- string(item)
	}, nil, testOptions(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer teardown()

	if got := waitUpdate(t, updates); got != `{"n":1}` {
		t.Errorf("first polled update = %s", got)
	}
	if got := waitUpdate(t, updates); got != `{"n":2}` {
		t.Errorf("second polled update = %s", got)
	}
}

func TestTeardown_Idempotent(t *testing.T) {
	srv, _ := socketServer(t, func(conn *websocket.Conn, attempt int64) {
		defer conn.Close()
		conn.ReadMessage()
	})

	teardown, err := Open(srv.URL, "", func(json.RawMessage) {}, nil, testOptions(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	teardown()
	teardown()
}

func TestTeardown_StopsReconnect(t *testing.T) {
	srv, handshakes := socketServer(t, func(conn *websocket.Conn, attempt int64) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{}`))
		conn.UnderlyingConn().Close()
	})

	updates := make(chan string, 16)
	transportErrors := make(chan transportError, 16)
	teardown, err := Open(srv.URL, "", func(item json.RawMessage) {
		updates <- string(item)
	}, func(id, message string) {
		transportErrors <- transportError{id: id, message: message}
	}, testOptions(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	waitUpdate(t, updates)
	select {
	case <-transportErrors:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transport error")
	}

	// Teardown while the reconnect timer is pending must cancel it
	teardown()
	time.Sleep(200 * time.Millisecond)

	if n := atomic.LoadInt64(handshakes); n != 1 {
		t.Errorf("handshakes = %d, want 1 (teardown must cancel pending reconnect)", n)
	}
}
