package tts

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"acss/internal/protocol"
	"acss/pkg/websocket"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// State 连接状态
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

const (
	headerAuthorization   = "Authorization"
	headerSubscriptionKey = "Ocp-Apim-Subscription-Key"
	headerConnectionID    = "X-ConnectionId"
)

// EndpointForRegion 返回区域的 websocket 地址
func EndpointForRegion(region string) string {
	return fmt.Sprintf("wss://%s.tts.speech.microsoft.com/cognitiveservices/websocket/v1", region)
}

// Session 一条物理连接。多个 Synthesize 可以并发，共享同一个接收循环。
// 不自动重连，断开后需要重新 Connect。
type Session struct {
	opts       options
	client     websocket.Client
	correlator *Correlator
	log        *logrus.Entry

	state atomic.Int32

	// sendMu 保证一个请求的三帧连续写出
	sendMu sync.Mutex
	seq    uint64

	ctx    context.Context
	cancel context.CancelFunc

	teardownOnce sync.Once
	done         chan struct{}

	errMu sync.Mutex
	err   error
}

// Connect 建立连接并启动接收循环。
// 握手失败返回 ErrConnectionFailed；服务端以 401/403 拒绝或凭据刷新失败时返回 ErrAuthenticationRejected。
func Connect(ctx context.Context, endpoint, credential string, opts ...Option) (*Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	connectionID := protocol.NewRequestID()
	log := o.logger.WithFields(logrus.Fields{
		"component":     "tts",
		"connection_id": connectionID,
	})

	s := &Session{
		opts:       o,
		correlator: NewCorrelator(o.turnBuffer, log),
		log:        log,
		done:       make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))

	if o.refresher != nil {
		token, err := o.refresher(ctx)
		if err != nil {
			s.state.Store(int32(StateDisconnected))
			return nil, fmt.Errorf("%w: refresh credential: %v", ErrAuthenticationRejected, err)
		}
		credential = token
	}

	header := http.Header{}
	if o.subscriptionKey {
		header.Set(headerSubscriptionKey, credential)
	} else {
		header.Set(headerAuthorization, "Bearer "+credential)
	}
	header.Set(headerConnectionID, connectionID)

	client, resp, err := o.dialer(ctx, websocket.Config{
		URL:         endpoint,
		Headers:     header,
		DialTimeout: o.dialTimeout,
	})
	if err != nil {
		s.state.Store(int32(StateDisconnected))
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake returned %s", ErrAuthenticationRejected, resp.Status)
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s.client = client
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.state.Store(int32(StateConnected))
	log.Infof("tts: connected to %s", endpoint)

	go s.recvLoop()
	return s, nil
}

// State 当前状态
func (s *Session) State() State {
	return State(s.state.Load())
}

// Done 在连接断开并清理完毕后关闭
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err 返回导致断开的原因，调用 Close 主动关闭时为 nil
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Synthesize 发送一次合成请求，返回该请求的事件流。
// 调用方必须读到终止事件或调用 Stream.Close，否则 turn 会一直占用。
func (s *Session) Synthesize(ctx context.Context, req Request) (*Stream, error) {
	if s.State() != StateConnected {
		return nil, ErrSessionNotConnected
	}
	if req.RequestID == "" {
		req.RequestID = protocol.NewRequestID()
	}

	turn, err := s.correlator.Register(req.RequestID)
	if err != nil {
		return nil, err
	}
	// 注册与断开并发时，断开可能已经错过这个 turn
	if s.State() != StateConnected {
		s.correlator.release(turn)
		return nil, ErrSessionNotConnected
	}

	format := req.Format
	if format.Name == "" {
		format = DefaultFormat
	}
	_, span := tracer.Start(ctx, "tts.synthesize", trace.WithAttributes(
		attribute.String("tts.request_id", req.RequestID),
		attribute.String("tts.output_format", format.Name),
		attribute.Bool("tts.visemes", req.Visemes),
	))
	stream := newStream(turn, s.correlator, span, s.log)

	if err := s.send(ctx, req); err != nil {
		span.SetStatus(codes.Error, err.Error())
		_ = stream.Close()
		return nil, err
	}

	stream.log.Debugf("tts: request sent, format %s", format.Name)
	return stream, nil
}

func (s *Session) send(ctx context.Context, req Request) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	msgs, err := protocol.EncodeRequest(req.parts(s.opts.clientContext), s.seq)
	if err != nil {
		return fmt.Errorf("tts: encode request: %w", err)
	}
	for _, msg := range msgs {
		if err := s.client.Send(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: send: %v", ErrConnectionLost, err)
		}
	}
	s.seq += uint64(len(msgs))
	return nil
}

// Close 关闭连接，所有未结束的 turn 收到 ErrConnectionLost。可重复调用。
func (s *Session) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *Session) recvLoop() {
	consecutive := 0
	for {
		msg, err := s.client.Recv(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				s.teardown(nil)
				return
			}
			s.teardown(fmt.Errorf("%w: %v", ErrConnectionLost, err))
			return
		}

		frame, err := protocol.Decode(msg)
		if err != nil {
			consecutive++
			decodeErrors.Add(s.ctx, 1)
			s.log.Warnf("tts: dropping undecodable message (%d in a row): %v", consecutive, err)
			if consecutive > s.opts.maxDecodeErrors {
				s.teardown(fmt.Errorf("%w: %d consecutive decode errors, last: %v", ErrConnectionLost, consecutive, err))
				return
			}
			continue
		}
		consecutive = 0

		if err := s.correlator.Route(s.ctx, frame); err != nil {
			// 只有 Close 会让 Route 返回错误
			s.teardown(nil)
			return
		}
	}
}

// teardown Closing → 清理全部 turn → Disconnected
func (s *Session) teardown(cause error) {
	s.teardownOnce.Do(func() {
		s.state.Store(int32(StateClosing))

		s.errMu.Lock()
		s.err = cause
		s.errMu.Unlock()

		s.correlator.InvalidateAll(ErrConnectionLost)
		_ = s.client.Close()
		s.cancel()

		s.state.Store(int32(StateDisconnected))
		close(s.done)

		if cause != nil {
			s.log.Warnf("tts: connection torn down: %v", cause)
		} else {
			s.log.Info("tts: connection closed")
		}
	})
}
