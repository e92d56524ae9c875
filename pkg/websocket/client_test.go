package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEchoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer ok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialSendRecv(t *testing.T) {
	srv := newEchoServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := Dial(ctx, Config{
		URL:     wsURL(srv),
		Headers: http.Header{"Authorization": {"Bearer ok"}},
	})
	require.NoError(t, err)
	defer c.Close()

	tests := []struct {
		name string
		msg  Message
	}{
		{name: "text", msg: Message{Type: TextMessage, Data: []byte("Path: turn.end\r\nX-RequestId: a")}},
		{name: "binary", msg: Message{Type: BinaryMessage, Data: []byte{0x02, 0x00, 'a', ':', 1, 2, 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, c.Send(ctx, tt.msg))
			got, err := c.Recv(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.msg.Type, got.Type)
			assert.Equal(t, tt.msg.Data, got.Data)
		})
	}
}

func TestDialRejectedReturnsResponse(t *testing.T) {
	srv := newEchoServer(t)

	_, resp, err := Dial(context.Background(), Config{URL: wsURL(srv)})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCloseIsIdempotentAndUnblocksRecv(t *testing.T) {
	srv := newEchoServer(t)
	ctx := context.Background()

	c, _, err := Dial(ctx, Config{
		URL:     wsURL(srv),
		Headers: http.Header{"Authorization": {"Bearer ok"}},
	})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Recv(ctx)
		errCh <- err
	}()

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Recv did not return after Close")
	}

	assert.Error(t, c.Send(ctx, Message{Type: TextMessage, Data: []byte("x")}))
	<-c.Done()
}

func TestIsNormalClose(t *testing.T) {
	assert.True(t, IsNormalClose(nil))
	assert.True(t, IsNormalClose(&websocket.CloseError{Code: websocket.CloseNormalClosure}))
	assert.False(t, IsNormalClose(&websocket.CloseError{Code: websocket.CloseInternalServerErr}))
}
