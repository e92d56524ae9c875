package tts

import (
	"context"
	"io"
	"sync"
	"testing"

	"acss/internal/protocol"
	"acss/pkg/websocket"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func audioFrame(t *testing.T, id string, seq uint64) *protocol.Frame {
	t.Helper()
	f, err := protocol.NewMessageBuilder(protocol.PathAudio, id).
		WithSequence(seq).
		WithBinaryBody([]byte{byte(seq), byte(seq + 1)}).
		Build()
	require.NoError(t, err)
	return f
}

func unnumberedAudioFrame(t *testing.T, id string, data []byte) *protocol.Frame {
	t.Helper()
	f, err := protocol.NewMessageBuilder(protocol.PathAudio, id).WithBinaryBody(data).Build()
	require.NoError(t, err)
	return f
}

func textFrame(t *testing.T, path, id, body string) *protocol.Frame {
	t.Helper()
	b := protocol.NewMessageBuilder(path, id)
	if body != "" {
		b.WithContentType(protocol.ContentTypeJSON).WithTextBody(body)
	}
	f, err := b.Build()
	require.NoError(t, err)
	return f
}

func turnEndFrame(t *testing.T, id string) *protocol.Frame {
	return textFrame(t, protocol.PathTurnEnd, id, "")
}

// collect 读到 io.EOF 为止
func collect(t *testing.T, s *Stream) []Event {
	t.Helper()
	var events []Event
	for {
		ev, err := s.Recv(context.Background())
		if err == io.EOF {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

// fakeConn 内存中的 websocket.Client
type fakeConn struct {
	inbound chan websocket.Message

	mu      sync.Mutex
	sent    []websocket.Message
	sendErr error
	recvErr error

	done      chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan websocket.Message, 64),
		done:    make(chan struct{}),
	}
}

func (c *fakeConn) Recv(ctx context.Context) (websocket.Message, error) {
	select {
	case msg := <-c.inbound:
		return msg, nil
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.recvErr != nil {
			return websocket.Message{}, c.recvErr
		}
		return websocket.Message{}, io.EOF
	case <-ctx.Done():
		return websocket.Message{}, ctx.Err()
	}
}

func (c *fakeConn) Send(ctx context.Context, msg websocket.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	select {
	case <-c.done:
		return io.EOF
	default:
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }

// drop 模拟远端断开
func (c *fakeConn) drop(err error) {
	c.mu.Lock()
	c.recvErr = err
	c.mu.Unlock()
	_ = c.Close()
}

func (c *fakeConn) sentMessages() []websocket.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]websocket.Message(nil), c.sent...)
}

func (c *fakeConn) push(t *testing.T, f *protocol.Frame) {
	t.Helper()
	msg, err := protocol.Encode(f)
	require.NoError(t, err)
	c.inbound <- msg
}
