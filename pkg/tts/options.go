package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"acss/pkg/websocket"

	"github.com/sirupsen/logrus"
)

const defaultMaxConsecutiveDecodeErrors = 8

// CredentialRefresher 在每次 Connect 前获取最新的凭据
type CredentialRefresher func(ctx context.Context) (string, error)

// Dialer 建立底层 websocket 连接，默认为 websocket.Dial
type Dialer func(ctx context.Context, config websocket.Config) (websocket.Client, *http.Response, error)

type Option func(*options)

type options struct {
	logger          *logrus.Logger
	turnBuffer      int
	maxDecodeErrors int
	refresher       CredentialRefresher
	subscriptionKey bool
	dialer          Dialer
	dialTimeout     time.Duration
	clientContext   json.RawMessage
}

func defaultOptions() options {
	return options{
		logger:          logrus.StandardLogger(),
		turnBuffer:      defaultTurnBuffer,
		maxDecodeErrors: defaultMaxConsecutiveDecodeErrors,
		dialer:          websocket.Dial,
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTurnBuffer 设置每个 turn 的帧缓冲长度（默认 64）。
//
// 所有 turn 共享一个接收循环：某个 turn 的缓冲满了以后，接收循环会阻塞
// 直到它的消费者读取，连接上其他 turn 的帧也随之停顿。
// 缓冲越大，慢消费者对其他 turn 的影响越小，占用的内存越多。
func WithTurnBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.turnBuffer = n
		}
	}
}

// WithMaxConsecutiveDecodeErrors 连续解码失败超过 n 次时断开连接（默认 8）
func WithMaxConsecutiveDecodeErrors(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxDecodeErrors = n
		}
	}
}

// WithCredentialRefresher 连接前调用 refresher 取得凭据，失败时 Connect 返回 ErrAuthenticationRejected
func WithCredentialRefresher(refresher CredentialRefresher) Option {
	return func(o *options) { o.refresher = refresher }
}

// WithSubscriptionKey 以 Ocp-Apim-Subscription-Key 头发送凭据，而不是 Bearer token
func WithSubscriptionKey() Option {
	return func(o *options) { o.subscriptionKey = true }
}

func WithDialer(dialer Dialer) Option {
	return func(o *options) {
		if dialer != nil {
			o.dialer = dialer
		}
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// WithClientContext 替换 speech.config 的正文
func WithClientContext(body json.RawMessage) Option {
	return func(o *options) { o.clientContext = body }
}
