package protocol

import (
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	"acss/pkg/websocket"
)

// RequestParts 一次合成请求需要编码的内容
type RequestParts struct {
	RequestID    string
	SSML         string
	OutputFormat string

	Visemes            bool
	WordBoundaries     bool
	SentenceBoundaries bool

	// ClientContext speech.config 的正文，为空时使用 DefaultClientContext
	ClientContext json.RawMessage

	// Now 为 nil 时使用 time.Now
	Now func() time.Time
}

type speechConfig struct {
	Context speechConfigContext `json:"context"`
}

type speechConfigContext struct {
	System speechConfigSystem `json:"system"`
	OS     speechConfigOS     `json:"os"`
}

type speechConfigSystem struct {
	Version string `json:"version"`
	Name    string `json:"name"`
	Build   string `json:"build"`
}

type speechConfigOS struct {
	Platform string `json:"platform"`
	Name     string `json:"name"`
	Version  string `json:"version"`
}

// DefaultClientContext 默认的 speech.config 正文
func DefaultClientContext() json.RawMessage {
	body, _ := json.Marshal(speechConfig{
		Context: speechConfigContext{
			System: speechConfigSystem{Version: "1.30.0", Name: "SpeechSDK", Build: "Go-" + runtime.GOARCH},
			OS:     speechConfigOS{Platform: runtime.GOOS, Name: "Client", Version: runtime.Version()},
		},
	})
	return body
}

type synthesisContext struct {
	Synthesis struct {
		Audio struct {
			MetadataOptions metadataOptions `json:"metadataOptions"`
			OutputFormat    string          `json:"outputFormat"`
		} `json:"audio"`
	} `json:"synthesis"`
}

type metadataOptions struct {
	SentenceBoundaryEnabled bool `json:"sentenceBoundaryEnabled"`
	WordBoundaryEnabled     bool `json:"wordBoundaryEnabled"`
	VisemeEnabled           bool `json:"visemeEnabled"`
	SessionEndEnabled       bool `json:"sessionEndEnabled"`
}

// EncodeRequest 按 speech.config、synthesis.context、ssml 的顺序编码一次请求。
// 三帧共享同一个 X-RequestId，X-Sequence 从 baseSeq 开始递增。
func EncodeRequest(req RequestParts, baseSeq uint64) ([]websocket.Message, error) {
	if req.RequestID == "" {
		return nil, fmt.Errorf("%w: missing request ID", ErrMalformedFrame)
	}
	if req.OutputFormat == "" {
		return nil, fmt.Errorf("encode request: missing output format")
	}

	now := time.Now
	if req.Now != nil {
		now = req.Now
	}

	clientContext := req.ClientContext
	if len(clientContext) == 0 {
		clientContext = DefaultClientContext()
	}

	var sc synthesisContext
	sc.Synthesis.Audio.OutputFormat = req.OutputFormat
	sc.Synthesis.Audio.MetadataOptions = metadataOptions{
		SentenceBoundaryEnabled: req.SentenceBoundaries,
		WordBoundaryEnabled:     req.WordBoundaries,
		VisemeEnabled:           req.Visemes,
	}
	contextBody, err := json.Marshal(sc)
	if err != nil {
		return nil, fmt.Errorf("encode synthesis context: %w", err)
	}

	parts := []struct {
		path        string
		contentType string
		body        string
	}{
		{PathSpeechConfig, ContentTypeJSON, string(clientContext)},
		{PathSynthesisContext, ContentTypeJSON, string(contextBody)},
		{PathSSML, ContentTypeSSML, req.SSML},
	}

	msgs := make([]websocket.Message, 0, len(parts))
	for i, part := range parts {
		msg, err := NewMessageBuilder(part.path, req.RequestID).
			WithContentType(part.contentType).
			WithTimestamp(now()).
			WithSequence(baseSeq + uint64(i)).
			WithTextBody(part.body).
			Message()
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", part.path, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}
