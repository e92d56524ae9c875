package protocol

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"acss/pkg/websocket"
)

// MessageBuilder 构造出站帧
type MessageBuilder struct {
	frame Frame
	err   error
}

func NewMessageBuilder(path, requestID string) *MessageBuilder {
	b := &MessageBuilder{
		frame: Frame{
			RequestID: requestID,
			Path:      strings.ToLower(path),
			Headers:   make(map[string]string),
		},
	}
	b.frame.Headers[strings.ToLower(HeaderPath)] = b.frame.Path
	b.frame.Headers[strings.ToLower(HeaderRequestID)] = requestID

	kind, err := KindOf(path)
	if err != nil {
		b.err = err
	}
	b.frame.Kind = kind
	return b
}

func (b *MessageBuilder) WithHeader(name, value string) *MessageBuilder {
	b.frame.Headers[strings.ToLower(name)] = value
	return b
}

func (b *MessageBuilder) WithContentType(contentType string) *MessageBuilder {
	return b.WithHeader(HeaderContentType, contentType)
}

func (b *MessageBuilder) WithStreamID(streamID string) *MessageBuilder {
	return b.WithHeader(HeaderStreamID, streamID)
}

func (b *MessageBuilder) WithSequence(seq uint64) *MessageBuilder {
	return b.WithHeader(HeaderSequence, strconv.FormatUint(seq, 10))
}

// WithTimestamp 服务端要求 ISO 8601 UTC 时间
func (b *MessageBuilder) WithTimestamp(t time.Time) *MessageBuilder {
	return b.WithHeader(HeaderTimestamp, t.UTC().Format("2006-01-02T15:04:05.000Z"))
}

func (b *MessageBuilder) WithTextBody(body string) *MessageBuilder {
	b.frame.Binary = false
	b.frame.Payload = []byte(body)
	return b
}

func (b *MessageBuilder) WithBinaryBody(body []byte) *MessageBuilder {
	b.frame.Binary = true
	b.frame.Payload = body
	return b
}

func (b *MessageBuilder) Build() (*Frame, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.frame.RequestID == "" {
		return nil, errors.Join(ErrMalformedFrame, errors.New("missing request ID"))
	}
	f := b.frame
	return &f, nil
}

// Message 构造并编码为 websocket 消息
func (b *MessageBuilder) Message() (websocket.Message, error) {
	f, err := b.Build()
	if err != nil {
		return websocket.Message{}, err
	}
	return Encode(f)
}
