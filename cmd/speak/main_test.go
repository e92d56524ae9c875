package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"acss/internal/protocol"
	"acss/pkg/tts"
	"acss/pkg/websocket"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSynthesisServer 回放一个包含两段音频和一个词边界的 turn
func newSynthesisServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := gorilla.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var id string
		for range 3 {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frame, err := protocol.Decode(websocket.Message{Type: websocket.TextMessage, Data: data})
			if err != nil {
				return
			}
			id = frame.RequestID
		}

		word := `{"Metadata":[{"Type":"WordBoundary","Data":{"Offset":0,"Duration":1000000,"text":{"Text":"hi"}}}]}`
		for _, b := range []*protocol.MessageBuilder{
			protocol.NewMessageBuilder(protocol.PathTurnStart, id),
			protocol.NewMessageBuilder(protocol.PathAudioMetadata, id).WithContentType(protocol.ContentTypeJSON).WithTextBody(word),
			protocol.NewMessageBuilder(protocol.PathAudio, id).WithSequence(0).WithBinaryBody([]byte{0, 0, 0, 64}),
			protocol.NewMessageBuilder(protocol.PathAudio, id).WithSequence(1).WithBinaryBody([]byte{0, 192}),
			protocol.NewMessageBuilder(protocol.PathTurnEnd, id),
		} {
			msg, err := b.Message()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(msg.Type, msg.Data); err != nil {
				return
			}
		}
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunWritesAudio(t *testing.T) {
	srv := newSynthesisServer(t)
	t.Setenv("ACSS_ENDPOINT", "ws"+strings.TrimPrefix(srv.URL, "http"))
	t.Setenv("ACSS_KEY", "secret")
	t.Setenv("ACSS_LOG_LEVEL", "error")

	tests := []struct {
		name   string
		file   string
		format string
		check  func(t *testing.T, data []byte)
	}{
		{
			name:   "wav",
			file:   "out.wav",
			format: "raw-16khz-16bit-mono-pcm",
			check: func(t *testing.T, data []byte) {
				require.Len(t, data, 44+6)
				assert.Equal(t, "RIFF", string(data[:4]))
				assert.Equal(t, "WAVE", string(data[8:12]))
			},
		},
		{
			name:   "raw",
			file:   "out.pcm",
			format: "raw-16khz-16bit-mono-pcm",
			check: func(t *testing.T, data []byte) {
				assert.Equal(t, []byte{0, 0, 0, 64, 0, 192}, data)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), tt.file)
			var stdout, stderr bytes.Buffer

			err := run(context.Background(), flags{
				text:    "hi",
				voice:   "jenny",
				format:  tt.format,
				out:     out,
				visemes: true,
			}, &stdout, &stderr)
			require.NoError(t, err, stderr.String())

			assert.Contains(t, stdout.String(), `word "hi" at 0s for 100ms`)

			data, err := os.ReadFile(out)
			require.NoError(t, err)
			tt.check(t, data)
		})
	}
}

func TestRunRejectsBadCredentials(t *testing.T) {
	srv := newSynthesisServer(t)
	t.Setenv("ACSS_ENDPOINT", "ws"+strings.TrimPrefix(srv.URL, "http"))
	t.Setenv("ACSS_KEY", "wrong")
	t.Setenv("ACSS_LOG_LEVEL", "error")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), flags{text: "hi"}, &stdout, &stderr)
	assert.ErrorIs(t, err, tts.ErrAuthenticationRejected)
}

func TestRunRejectsPlaybackOfCompressedAudio(t *testing.T) {
	t.Setenv("ACSS_KEY", "secret")
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), flags{text: "hi", format: "ogg-24khz-16bit-mono-opus", play: true}, &stdout, &stderr)
	assert.ErrorContains(t, err, "--play needs a raw PCM format")
}

func TestBuildSSML(t *testing.T) {
	tests := []struct {
		name    string
		voice   tts.VoiceProfile
		style   string
		text    string
		want    string
		wantErr bool
	}{
		{
			name:  "escapes text",
			voice: tts.VoiceJenny,
			text:  `Tom & "Jerry" <3`,
			want:  `<voice name="en-US-JennyNeural">Tom &amp; &#34;Jerry&#34; &lt;3</voice>`,
		},
		{
			name:  "style",
			voice: tts.VoiceXiaoxiao,
			style: "cheerful",
			text:  "你好",
			want:  `<mstts:express-as style="cheerful">你好</mstts:express-as>`,
		},
		{
			name:  "inline style tag",
			voice: tts.VoiceSonia,
			text:  `fine. <style name="sad">not really</style>`,
			want:  `fine. <mstts:express-as style="sad">not really</mstts:express-as></voice>`,
		},
		{
			name:    "unsupported inline style",
			voice:   tts.VoiceSonia,
			text:    `<style name="chat">hey</style>`,
			wantErr: true,
		},
		{
			name:    "unsupported style",
			voice:   tts.VoiceSonia,
			style:   "whispering",
			text:    "hello",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildSSML(tt.voice, tt.style, tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(got, "<speak "))
			assert.Contains(t, got, `xml:lang="`+tt.voice.Locale+`"`)
			assert.Contains(t, got, tt.want)
		})
	}
}

func TestLastWords(t *testing.T) {
	assert.Equal(t, "c d", lastWords("a b c d", 2))
	assert.Equal(t, "a b", lastWords("a b", 6))
	assert.Equal(t, "", lastWords("", 3))
}
