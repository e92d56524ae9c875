package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStyled(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		defaultStyle string
		want         []segment
		wantErr      string
	}{
		{
			name: "plain text",
			text: "hello world",
			want: []segment{{text: "hello world"}},
		},
		{
			name:         "default style applies outside tags",
			text:         `hi <style name="sad">oh no</style> bye`,
			defaultStyle: "cheerful",
			want: []segment{
				{style: "cheerful", text: "hi "},
				{style: "sad", text: "oh no"},
				{style: "cheerful", text: " bye"},
			},
		},
		{
			name: "other attributes ignored",
			text: `<style degree="2" name="chat">你好</style>`,
			want: []segment{{style: "chat", text: "你好"}},
		},
		{
			name: "stray angle brackets kept",
			text: "1 < 2 <b>bold</b>",
			want: []segment{{text: "1 < 2 <b>bold</b>"}},
		},
		{
			name: "empty tag body",
			text: `a<style name="sad"></style>b`,
			want: []segment{{text: "a"}, {text: "b"}},
		},
		{
			name:    "unclosed",
			text:    `<style name="sad">oh`,
			wantErr: "unclosed",
		},
		{
			name:    "nested",
			text:    `<style name="sad"><style name="chat">x</style></style>`,
			wantErr: "nested",
		},
		{
			name:    "missing name",
			text:    `<style>x</style>`,
			wantErr: "without name",
		},
		{
			name:    "stray end tag",
			text:    `x</style>`,
			wantErr: "without matching",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := splitStyled(tt.text, tt.defaultStyle)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
