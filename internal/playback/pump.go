package playback

import (
	"context"
	"errors"
	"io"

	"acss/pkg/tts"
)

// EventSource 事件来源，*tts.Stream 满足该接口
type EventSource interface {
	Recv(ctx context.Context) (tts.Event, error)
}

// Pump 把一个 turn 的音频和词边界写入 streamer，直到 TurnEnd。
// onEvent 非 nil 时每个事件都会回调一次；streamer 为 nil 时事件只交给 onEvent。
// 出错时 streamer 被取消；正常结束时 streamer 被 Close，缓冲播放完毕后结束。
func Pump(ctx context.Context, src EventSource, streamer *Streamer, onEvent func(tts.Event)) error {
	for {
		ev, err := src.Recv(ctx)
		if errors.Is(err, io.EOF) {
			return closeStreamer(streamer)
		}
		if err != nil {
			cancelStreamer(streamer)
			return err
		}

		if onEvent != nil {
			onEvent(ev)
		}

		switch ev := ev.(type) {
		case tts.AudioChunk:
			if streamer != nil {
				streamer.AppendAudio(ev.Data)
			}
		case tts.WordBoundary:
			if streamer != nil {
				streamer.AddWord(WordTiming{Word: ev.Text, Start: ev.Offset, End: ev.Offset + ev.Duration})
			}
		case tts.TurnEnd:
			return closeStreamer(streamer)
		case tts.ErrorEvent:
			cancelStreamer(streamer)
			return ev
		}
	}
}

func closeStreamer(s *Streamer) error {
	if s == nil {
		return nil
	}
	return s.Close()
}

func cancelStreamer(s *Streamer) {
	if s != nil {
		s.Cancel()
	}
}
