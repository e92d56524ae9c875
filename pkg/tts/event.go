package tts

import (
	"fmt"
	"time"
)

// Event 合成事件，具体类型为 AudioChunk、Viseme、WordBoundary、
// SentenceBoundary、TurnEnd 或 ErrorEvent
type Event interface {
	isEvent()
}

// AudioChunk 一段编码后的音频，Sequence 从 0 开始
type AudioChunk struct {
	Data     []byte
	Sequence uint64
}

// Viseme 口型事件，Offset 相对于本次合成音频的起点。
// 服务端未给出 VisemeId 时 ID 为 -1；Animation 只在返回混合形状动画时非空。
type Viseme struct {
	ID        int
	Offset    time.Duration
	Animation []BlendShapeFrame
}

// BlendShapeFrame 一帧面部混合形状权重
type BlendShapeFrame struct {
	Offset  time.Duration
	Weights []BlendShape
}

type BlendShape struct {
	Key    string
	Weight float64
}

type WordBoundary struct {
	Offset   time.Duration
	Duration time.Duration
	Text     string
}

type SentenceBoundary struct {
	Offset   time.Duration
	Duration time.Duration
	Text     string
}

// TurnEnd 正常结束
type TurnEnd struct{}

// ErrorEvent 终止错误事件，Kind 为本包的哨兵错误之一
type ErrorEvent struct {
	Kind   error
	Detail string
}

func (e ErrorEvent) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
}

func (e ErrorEvent) Unwrap() error { return e.Kind }

func (AudioChunk) isEvent()       {}
func (Viseme) isEvent()           {}
func (WordBoundary) isEvent()     {}
func (SentenceBoundary) isEvent() {}
func (TurnEnd) isEvent()          {}
func (ErrorEvent) isEvent()       {}

// isTerminal 终止事件之后序列结束
func isTerminal(ev Event) bool {
	switch ev.(type) {
	case TurnEnd, ErrorEvent:
		return true
	}
	return false
}
