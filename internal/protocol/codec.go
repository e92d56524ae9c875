package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"acss/pkg/websocket"
)

const (
	headerLenSize   = 2
	headerSeparator = "\r\n"
	bodySeparator   = "\r\n\r\n"
	lfBodySeparator = "\n\n"
)

// Decode 将一条原始 websocket 消息解析为 Frame
//
// 文本消息: 头部块，可选地接空行（"\r\n\r\n" 或 "\n\n"）和文本正文；
// 二进制消息: [2 字节小端头部长度][头部][负载]。
func Decode(msg websocket.Message) (*Frame, error) {
	switch msg.Type {
	case websocket.TextMessage:
		return decodeText(msg.Data)
	case websocket.BinaryMessage:
		return decodeBinary(msg.Data)
	default:
		return nil, fmt.Errorf("%w: unsupported message type %d", ErrMalformedFrame, msg.Type)
	}
}

func decodeText(data []byte) (*Frame, error) {
	head, body := splitBody(data)
	if !utf8.Valid(head) {
		return nil, fmt.Errorf("%w: header block is not valid UTF-8", ErrMalformedFrame)
	}

	frame, err := parseHeaders(string(head))
	if err != nil {
		return nil, err
	}
	if len(body) > 0 {
		frame.Payload = append([]byte(nil), body...)
	}
	return frame, nil
}

// splitBody 在第一个空行处切开头部和正文，两种换行都接受
func splitBody(data []byte) (head, body []byte) {
	i, sep := bytes.Index(data, []byte(bodySeparator)), len(bodySeparator)
	if j := bytes.Index(data, []byte(lfBodySeparator)); j >= 0 && (i < 0 || j < i) {
		i, sep = j, len(lfBodySeparator)
	}
	if i < 0 {
		return data, nil
	}
	return data[:i], data[i+sep:]
}

func decodeBinary(data []byte) (*Frame, error) {
	if len(data) < headerLenSize {
		return nil, fmt.Errorf("%w: binary message of %d bytes has no header length", ErrMalformedFrame, len(data))
	}

	headerLen := int(binary.LittleEndian.Uint16(data[:headerLenSize]))
	rest := data[headerLenSize:]
	if headerLen > len(rest) {
		return nil, fmt.Errorf("%w: header length %d exceeds %d remaining bytes", ErrTruncatedPayload, headerLen, len(rest))
	}

	head := rest[:headerLen]
	if !utf8.Valid(head) {
		return nil, fmt.Errorf("%w: header block is not valid UTF-8", ErrMalformedFrame)
	}

	frame, err := parseHeaders(string(head))
	if err != nil {
		return nil, err
	}
	frame.Binary = true
	frame.Payload = append([]byte(nil), rest[headerLen:]...)
	return frame, nil
}

func parseHeaders(block string) (*Frame, error) {
	headers := make(map[string]string)
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: bad header %q", ErrMalformedFrame, line)
		}
		headers[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}

	requestID := headers[strings.ToLower(HeaderRequestID)]
	if requestID == "" {
		return nil, fmt.Errorf("%w: missing %s header", ErrMalformedFrame, HeaderRequestID)
	}
	path := headers[strings.ToLower(HeaderPath)]
	if path == "" {
		return nil, fmt.Errorf("%w: missing %s header", ErrMalformedFrame, HeaderPath)
	}

	kind, err := KindOf(path)
	if err != nil {
		return nil, err
	}

	return &Frame{
		Kind:      kind,
		RequestID: requestID,
		Path:      strings.ToLower(path),
		Headers:   headers,
	}, nil
}

// Encode 将 Frame 序列化为一条 websocket 消息，Binary 决定消息类型
func Encode(f *Frame) (websocket.Message, error) {
	if f.RequestID == "" {
		return websocket.Message{}, fmt.Errorf("%w: missing %s", ErrMalformedFrame, HeaderRequestID)
	}
	if f.Path == "" {
		return websocket.Message{}, fmt.Errorf("%w: missing %s", ErrMalformedFrame, HeaderPath)
	}

	head := formatHeaders(f)

	if f.Binary {
		if len(head) > 0xFFFF {
			return websocket.Message{}, fmt.Errorf("%w: header block of %d bytes is too large", ErrMalformedFrame, len(head))
		}
		buf := make([]byte, headerLenSize, headerLenSize+len(head)+len(f.Payload))
		binary.LittleEndian.PutUint16(buf, uint16(len(head)))
		buf = append(buf, head...)
		buf = append(buf, f.Payload...)
		return websocket.Message{Type: websocket.BinaryMessage, Data: buf}, nil
	}

	var b strings.Builder
	b.WriteString(head)
	if len(f.Payload) > 0 {
		b.WriteString(bodySeparator)
		b.Write(f.Payload)
	}
	return websocket.Message{Type: websocket.TextMessage, Data: []byte(b.String())}, nil
}

// formatHeaders 输出顺序固定，便于测试和抓包对比
func formatHeaders(f *Frame) string {
	lines := []string{
		HeaderPath + ": " + f.Path,
		HeaderRequestID + ": " + f.RequestID,
	}

	names := make([]string, 0, len(f.Headers))
	for name := range f.Headers {
		switch strings.ToLower(name) {
		case strings.ToLower(HeaderPath), strings.ToLower(HeaderRequestID):
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		lines = append(lines, canonicalHeader(name)+": "+f.Headers[name])
	}
	return strings.Join(lines, headerSeparator)
}

var canonicalHeaders = map[string]string{
	"content-type": HeaderContentType,
	"x-streamid":   HeaderStreamID,
	"x-timestamp":  HeaderTimestamp,
	"x-sequence":   HeaderSequence,
}

func canonicalHeader(name string) string {
	if c, ok := canonicalHeaders[strings.ToLower(name)]; ok {
		return c
	}
	return name
}
