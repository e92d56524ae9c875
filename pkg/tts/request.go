package tts

import (
	"acss/internal/protocol"
)

// Request 一次合成请求，发送后不可修改
type Request struct {
	// RequestID 为空时由 Session 生成
	RequestID string
	// SSML 已校验的标记文本，原样发送
	SSML string
	// Format 零值时使用 DefaultFormat
	Format AudioFormat

	Visemes            bool
	WordBoundaries     bool
	SentenceBoundaries bool
}

func (r Request) parts(clientContext []byte) protocol.RequestParts {
	format := r.Format
	if format.Name == "" {
		format = DefaultFormat
	}
	return protocol.RequestParts{
		RequestID:          r.RequestID,
		SSML:               r.SSML,
		OutputFormat:       format.Name,
		Visemes:            r.Visemes,
		WordBoundaries:     r.WordBoundaries,
		SentenceBoundaries: r.SentenceBoundaries,
		ClientContext:      clientContext,
	}
}
