package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialTestWS creates a test HTTP server that upgrades to WebSocket and
// returns both sides of the connection. The caller must close the server.
func dialTestWS(t *testing.T) (*httptest.Server, *websocket.Conn, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- c
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}

	select {
	case serverConn := <-connCh:
		return srv, serverConn, clientConn
	case <-time.After(2 * time.Second):
		srv.Close()
		t.Fatal("timed out waiting for server-side WebSocket connection")
		return nil, nil, nil
	}
}

func TestRawAddrShape(t *testing.T) {
	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	defer clientConn.Close()

	c := newConn(serverConn, 4)
	defer c.close()

	raw := c.RawAddr()
	if !strings.HasPrefix(raw, "/") {
		t.Errorf("RawAddr %q lacks leading slash", raw)
	}
	if !strings.Contains(raw[1:], ":") {
		t.Errorf("RawAddr %q lacks a port segment", raw)
	}
}

func TestSendTextDeliversThroughWritePump(t *testing.T) {
	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	defer clientConn.Close()

	c := newConn(serverConn, 4)
	go c.writePump(time.Hour, time.Second)
	defer c.close()

	if err := c.SendText(`{"hello":"robot"}`); err != nil {
		t.Fatalf("SendText error: %v", err)
	}

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := clientConn.ReadMessage()
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if kind != websocket.TextMessage {
		t.Errorf("message kind = %d, want text", kind)
	}
	if string(data) != `{"hello":"robot"}` {
		t.Errorf("delivered %q, want the sent frame", data)
	}
}

// TestSendTextBufferFull verifies slow-consumer isolation: with the pump
// not draining, a full buffer is an immediate error, never a block.
func TestSendTextBufferFull(t *testing.T) {
	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	defer clientConn.Close()

	c := newConn(serverConn, 1) // no writePump draining
	defer c.close()

	if err := c.SendText("first"); err != nil {
		t.Fatalf("first SendText error: %v", err)
	}
	if err := c.SendText("second"); err != ErrSendBufferFull {
		t.Errorf("second SendText error = %v, want ErrSendBufferFull", err)
	}
}

func TestSendTextAfterClose(t *testing.T) {
	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	defer clientConn.Close()

	c := newConn(serverConn, 4)
	c.close()

	if err := c.SendText("late"); err != ErrConnClosed {
		t.Errorf("SendText after close = %v, want ErrConnClosed", err)
	}
}
