package main

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"acss/pkg/tts"
)

// buildSSML 把纯文本包装成指定音色的 SSML，文本中的 <style> 标签覆盖默认风格
func buildSSML(voice tts.VoiceProfile, style, text string) (string, error) {
	segments, err := splitStyled(text, style)
	if err != nil {
		return "", err
	}

	var body strings.Builder
	for _, seg := range segments {
		var escaped bytes.Buffer
		if err := xml.EscapeText(&escaped, []byte(seg.text)); err != nil {
			return "", fmt.Errorf("escape text: %w", err)
		}
		if seg.style == "" {
			body.Write(escaped.Bytes())
			continue
		}
		if !voice.SupportsStyle(seg.style) {
			return "", fmt.Errorf("voice %s does not support style %q", voice.ShortName, seg.style)
		}
		fmt.Fprintf(&body, `<mstts:express-as style="%s">%s</mstts:express-as>`, seg.style, escaped.String())
	}

	return fmt.Sprintf(
		`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xmlns:mstts="http://www.w3.org/2001/mstts" xml:lang="%s"><voice name="%s">%s</voice></speak>`,
		voice.Locale, voice.ShortName, body.String(),
	), nil
}
