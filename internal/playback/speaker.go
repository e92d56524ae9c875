package playback

import (
	"fmt"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

// Progress 播放进度
type Progress struct {
	Current     time.Duration
	Total       time.Duration
	CurrentWord *WordTiming
	PlayedText  string
	// Percentage 0-100，以目前已收到的音频为准
	Percentage float64
}

// Speaker 通过系统音频设备播放 StreamQueue
type Speaker struct {
	queue      *StreamQueue
	sampleRate beep.SampleRate
}

// NewSpeaker 初始化音频设备，进程内只应调用一次
func NewSpeaker(sampleRate beep.SampleRate) (*Speaker, error) {
	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/10)); err != nil {
		return nil, fmt.Errorf("playback: init speaker: %w", err)
	}
	s := &Speaker{
		queue:      NewStreamQueue(),
		sampleRate: sampleRate,
	}
	speaker.Play(s.queue)
	return s, nil
}

// NewStreamer 创建一个与设备采样率一致的 Streamer
func (s *Speaker) NewStreamer(channels int) *Streamer {
	return NewStreamer(s.sampleRate, channels)
}

func (s *Speaker) Play(streamer *Streamer) {
	s.queue.Push(streamer)
}

// Stop 停止当前 streamer
func (s *Speaker) Stop() {
	speaker.Lock()
	s.queue.StopCurrent()
	speaker.Unlock()
}

func (s *Speaker) Close() {
	s.Stop()
	speaker.Close()
}

// Progress 当前 streamer 的进度
func (s *Speaker) Progress() Progress {
	return progressOf(s.queue.Current())
}

func progressOf(st *Streamer) Progress {
	if st == nil {
		return Progress{}
	}
	current, total := st.Progress()
	p := Progress{
		Current:     current,
		Total:       total,
		CurrentWord: st.CurrentWord(current),
		PlayedText:  st.PlayedText(current),
	}
	if total > 0 {
		p.Percentage = min(float64(current)/float64(total)*100, 100)
	}
	return p
}
