package websocket

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// 消息类型，与 gorilla/websocket 保持一致
const (
	TextMessage   = websocket.TextMessage
	BinaryMessage = websocket.BinaryMessage
)

// Message 一条完整的 websocket 消息
type Message struct {
	Type int
	Data []byte
}

// IsText 是否为文本消息
func (m Message) IsText() bool { return m.Type == TextMessage }

// IsBinary 是否为二进制消息
func (m Message) IsBinary() bool { return m.Type == BinaryMessage }

// Config WebSocket 客户端配置
type Config struct {
	// URL WebSocket 服务器地址（ws:// 或 wss://）
	URL string

	// Headers 连接时发送的 HTTP 头
	Headers http.Header

	// TLSConfig TLS 配置（用于 wss:// 连接）
	// 如果为 nil，使用默认的 TLS 配置
	TLSConfig *tls.Config

	// DialTimeout 连接超时时间（默认 5 秒）
	DialTimeout time.Duration

	// HandshakeTimeout 握手超时时间（默认 10 秒）
	HandshakeTimeout time.Duration

	// QueueSize 收发队列长度（默认 128）
	QueueSize int
}

// Client WebSocket 客户端接口
type Client interface {
	Recv(ctx context.Context) (Message, error)
	Send(ctx context.Context, msg Message) error
	Close() error
	Done() <-chan struct{}
}

type client struct {
	conn *websocket.Conn

	recvCh chan Message
	sendCh chan Message

	done chan struct{}

	closeOnce sync.Once
	err       atomic.Value // 保存 errBox
}

// atomic.Value 要求每次存入的具体类型一致
type errBox struct{ err error }

// Dial 建立连接并启动读写循环。
// 握手失败时返回服务端的 HTTP 响应（可能为 nil），调用方据此区分鉴权失败和网络失败。
func Dial(ctx context.Context, config Config) (Client, *http.Response, error) {
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = 10 * time.Second
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 128
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: config.HandshakeTimeout,
	}

	if config.TLSConfig != nil {
		dialer.TLSClientConfig = config.TLSConfig
	}

	dialCtx, cancel := context.WithTimeout(ctx, config.DialTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, config.URL, config.Headers)
	if err != nil {
		if conn != nil {
			_ = conn.Close()
		}
		return nil, resp, fmt.Errorf("dial websocket: %w", err)
	}

	return newClient(conn, config.QueueSize), resp, nil
}

func newClient(conn *websocket.Conn, queueSize int) *client {
	c := &client{
		conn:   conn,
		recvCh: make(chan Message, queueSize),
		sendCh: make(chan Message, queueSize),
		done:   make(chan struct{}),
	}

	go c.readLoop()
	go c.writeLoop()

	return c
}

func (c *client) readLoop() {
	defer c.Close()

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.setErr(err)
			return
		}

		select {
		case c.recvCh <- Message{Type: msgType, Data: data}:
		case <-c.done:
			return
		}
	}
}

// writeLoop 是连接上唯一的写者，保证消息不会交错
func (c *client) writeLoop() {
	defer c.Close()

	for {
		select {
		case msg := <-c.sendCh:
			if err := c.conn.WriteMessage(msg.Type, msg.Data); err != nil {
				c.setErr(err)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) Recv(ctx context.Context) (Message, error) {
	select {
	case msg := <-c.recvCh:
		return msg, nil

	case <-c.done:
		// 连接关闭前已读到的消息先交付
		select {
		case msg := <-c.recvCh:
			return msg, nil
		default:
		}
		if err := c.getErr(); err != nil {
			return Message{}, err
		}
		return Message{}, io.EOF

	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (c *client) Send(ctx context.Context, msg Message) error {
	select {
	case <-c.done:
		return io.EOF
	default:
	}

	select {
	case c.sendCh <- msg:
		return nil

	case <-c.done:
		return io.EOF

	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 发送关闭帧后断开连接，可以安全地多次调用
func (c *client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		// WriteControl 可以与 WriteMessage 并发调用
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = c.conn.Close()
	})
	return nil
}

func (c *client) Done() <-chan struct{} {
	return c.done
}

func (c *client) setErr(err error) {
	if err != nil {
		c.err.Store(errBox{err: err})
	}
}

func (c *client) getErr() error {
	if v := c.err.Load(); v != nil {
		return v.(errBox).err
	}
	return nil
}

// IsNormalClose 判断是否为正常关闭
func IsNormalClose(err error) bool {
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
