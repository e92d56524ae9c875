package playback

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/sirupsen/logrus"
)

var ErrStreamStopped = errors.New("playback: stream stopped")

// WordTiming 一个词在音频中的时间范围
type WordTiming struct {
	Word  string
	Start time.Duration
	End   time.Duration
}

// Streamer 把增量到达的 16 位小端 PCM 适配为 beep.Streamer
type Streamer struct {
	format beep.Format

	buf *bytes.Buffer
	mu  sync.RWMutex

	// 消费者调用 Cancel 时取消
	ctx    context.Context
	cancel context.CancelFunc

	err         error
	eos         bool
	bytesPlayed int64
	bytesTotal  int64
	startTime   time.Time

	words []WordTiming
}

func NewStreamer(sampleRate beep.SampleRate, channels int) *Streamer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Streamer{
		format: beep.Format{
			SampleRate:  sampleRate,
			NumChannels: channels,
			Precision:   2,
		},
		buf:    bytes.NewBuffer(make([]byte, 0, 8192)),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Streamer) Format() beep.Format { return s.format }

// AppendAudio 追加 PCM 数据，Cancel 或 Close 之后的数据被忽略
func (s *Streamer) AppendAudio(p []byte) {
	if len(p) == 0 || s.ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil || s.eos {
		return
	}
	if _, err := s.buf.Write(p); err != nil {
		s.err = err
		logrus.Errorf("playback: failed to write to buffer: %v", err)
		return
	}
	s.bytesTotal += int64(len(p))
}

// AddWord 记录一个词的时间，用于计算已播放文本
func (s *Streamer) AddWord(w WordTiming) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.words = append(s.words, w)
}

// Stream 实现 beep.Streamer。缓冲为空但流未结束时返回 (0, true)，由 beep 继续轮询。
func (s *Streamer) Stream(samples [][2]float64) (int, bool) {
	if s.ctx.Err() != nil {
		s.mu.Lock()
		if s.err == nil {
			s.err = s.ctx.Err()
		}
		s.mu.Unlock()
		return 0, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if errors.Is(s.err, ErrStreamStopped) {
		return 0, false
	}

	bytesPerSample := s.format.NumChannels * s.format.Precision
	want := len(samples) * bytesPerSample
	// 只读取完整的采样帧
	avail := s.buf.Len() - s.buf.Len()%bytesPerSample
	if avail == 0 {
		if s.eos || s.err != nil {
			return 0, false
		}
		return 0, true
	}

	chunk := make([]byte, min(want, avail))
	n, err := s.buf.Read(chunk)
	if err != nil && err != io.EOF {
		s.err = err
		logrus.Errorf("playback: failed to read from buffer: %v", err)
		return 0, false
	}

	if s.startTime.IsZero() {
		s.startTime = time.Now()
	}
	s.bytesPlayed += int64(n)

	read := n / bytesPerSample
	for i := 0; i < read; i++ {
		offset := i * bytesPerSample
		if s.format.NumChannels == 1 {
			v := pcm16ToFloat(chunk[offset:])
			samples[i][0] = v
			samples[i][1] = v
		} else {
			samples[i][0] = pcm16ToFloat(chunk[offset:])
			samples[i][1] = pcm16ToFloat(chunk[offset+2:])
		}
	}
	return read, true
}

func pcm16ToFloat(b []byte) float64 {
	if len(b) < 2 {
		return 0
	}
	v := int16(binary.LittleEndian.Uint16(b))
	return float64(v) / 32768.0
}

func (s *Streamer) Err() error {
	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if errors.Is(s.err, io.EOF) {
		return nil
	}
	return s.err
}

// Close 标记数据已全部到达，缓冲读完后 Stream 返回 (0, false)
func (s *Streamer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eos = true
	if s.err == nil {
		s.err = io.EOF
	}
	return nil
}

// Cancel 立即停止播放，并通知生产者停止写入
func (s *Streamer) Cancel() {
	s.cancel()
	s.mu.Lock()
	if s.err == nil || errors.Is(s.err, io.EOF) {
		s.err = ErrStreamStopped
	}
	s.mu.Unlock()
}

// Done 在 Cancel 后关闭
func (s *Streamer) Done() <-chan struct{} { return s.ctx.Done() }

func (s *Streamer) bytesToDuration(n int64) time.Duration {
	bytesPerSecond := int64(s.format.SampleRate) * int64(s.format.NumChannels) * int64(s.format.Precision)
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bytesPerSecond)
}

// Progress 已播放时长和目前已收到的音频总时长
func (s *Streamer) Progress() (current, total time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bytesToDuration(s.bytesPlayed), s.bytesToDuration(s.bytesTotal)
}

// CurrentWord 当前时间正在播放的词
func (s *Streamer) CurrentWord(current time.Duration) *WordTiming {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.words {
		if w := s.words[i]; w.Start <= current && current < w.End {
			return &w
		}
	}
	return nil
}

// PlayedText 已经完整播放的词，按空格拼接
func (s *Streamer) PlayedText(current time.Duration) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var played []string
	for _, w := range s.words {
		if w.End > current {
			break
		}
		played = append(played, w.Word)
	}
	return strings.Join(played, " ")
}
