package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrMalformedFrame   = errors.New("malformed frame")
	ErrUnknownFrameKind = errors.New("unknown frame kind")
	ErrTruncatedPayload = errors.New("truncated payload")
)

// 协议头
const (
	HeaderRequestID   = "X-RequestId"
	HeaderPath        = "Path"
	HeaderContentType = "Content-Type"
	HeaderStreamID    = "X-StreamId"
	HeaderTimestamp   = "X-Timestamp"
	HeaderSequence    = "X-Sequence"
)

// 消息路径
const (
	PathSpeechConfig     = "speech.config"
	PathSynthesisContext = "synthesis.context"
	PathSSML             = "ssml"
	PathAudio            = "audio"
	PathAudioMetadata    = "audio.metadata"
	PathTurnStart        = "turn.start"
	PathTurnEnd          = "turn.end"
	PathResponse         = "response"
	PathError            = "error"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypeSSML = "application/ssml+xml"
)

// Kind 帧类型
type Kind int

const (
	KindRequest Kind = iota + 1
	KindAudio
	KindMetadata
	KindTurnStart
	KindTurnEnd
	KindResponse
	KindError
)

var kindNames = map[Kind]string{
	KindRequest:   "request",
	KindAudio:     "audio-chunk",
	KindMetadata:  "metadata",
	KindTurnStart: "turn-start",
	KindTurnEnd:   "turn-end",
	KindResponse:  "response",
	KindError:     "error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsTerminal 终止帧结束一个 turn
func (k Kind) IsTerminal() bool {
	return k == KindTurnEnd || k == KindError
}

var pathKinds = map[string]Kind{
	PathSpeechConfig:     KindRequest,
	PathSynthesisContext: KindRequest,
	PathSSML:             KindRequest,
	PathAudio:            KindAudio,
	PathAudioMetadata:    KindMetadata,
	PathTurnStart:        KindTurnStart,
	PathTurnEnd:          KindTurnEnd,
	PathResponse:         KindResponse,
	PathError:            KindError,
}

// KindOf 根据 Path 头确定帧类型
func KindOf(path string) (Kind, error) {
	kind, ok := pathKinds[strings.ToLower(path)]
	if !ok {
		return 0, fmt.Errorf("%w: path %q", ErrUnknownFrameKind, path)
	}
	return kind, nil
}

// Frame 解析后的协议消息
type Frame struct {
	Kind      Kind
	RequestID string
	Path      string
	// Headers 的 key 统一为小写
	Headers map[string]string
	Payload []byte
	// Binary 标记来自二进制消息
	Binary bool
}

// Header 按名称取头，大小写不敏感
func (f *Frame) Header(name string) (string, bool) {
	v, ok := f.Headers[strings.ToLower(name)]
	return v, ok
}

func (f *Frame) String() string {
	return fmt.Sprintf("Frame{Kind: %s, Path: %s, RequestID: %s, Binary: %v, PayloadLen: %d}",
		f.Kind, f.Path, f.RequestID, f.Binary, len(f.Payload))
}

// NewRequestID 生成服务端要求的无连字符 UUID
func NewRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
