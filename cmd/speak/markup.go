package main

import (
	"fmt"
	"regexp"
	"strings"
)

// segment 一段使用同一说话风格的文本
type segment struct {
	style string
	text  string
}

var (
	styleStartRe = regexp.MustCompile(`^<style([^>]*)>`)
	styleEndRe   = regexp.MustCompile(`^</style>`)
	attrRe       = regexp.MustCompile(`([a-zA-Z0-9_-]+)="([^"]*)"`)
)

func parseAttrs(s string) map[string]string {
	m := make(map[string]string)
	for _, a := range attrRe.FindAllStringSubmatch(s, -1) {
		m[a[1]] = a[2]
	}
	return m
}

// splitStyled 按 <style name="..."> 标签把文本切成段。
// 标签外的文本使用 defaultStyle；不认识的标签原样保留为文本。
func splitStyled(text, defaultStyle string) ([]segment, error) {
	var (
		segments []segment
		buf      strings.Builder
		active   = defaultStyle
		inTag    bool
	)

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		segments = append(segments, segment{style: active, text: buf.String()})
		buf.Reset()
	}

	rest := text
	for len(rest) > 0 {
		i := strings.Index(rest, "<")
		if i == -1 {
			buf.WriteString(rest)
			break
		}
		buf.WriteString(rest[:i])
		rest = rest[i:]

		if m := styleStartRe.FindStringSubmatch(rest); m != nil {
			if inTag {
				return nil, fmt.Errorf("nested <style> tags are not supported")
			}
			name := parseAttrs(m[1])["name"]
			if name == "" {
				return nil, fmt.Errorf("<style> tag without name attribute")
			}
			flush()
			active, inTag = name, true
			rest = rest[len(m[0]):]
			continue
		}

		if m := styleEndRe.FindString(rest); m != "" {
			if !inTag {
				return nil, fmt.Errorf("</style> without matching <style>")
			}
			flush()
			active, inTag = defaultStyle, false
			rest = rest[len(m):]
			continue
		}

		// 普通的 '<'
		buf.WriteByte('<')
		rest = rest[1:]
	}

	if inTag {
		return nil, fmt.Errorf("unclosed <style name=%q> tag", active)
	}
	flush()
	return segments, nil
}
