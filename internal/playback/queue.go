package playback

import (
	"sync"

	"github.com/gopxl/beep"
)

// StreamQueue 依次播放多个 Streamer，队列为空时输出静音而不结束
type StreamQueue struct {
	mu      sync.Mutex
	current beep.Streamer
	queue   []beep.Streamer
}

func NewStreamQueue() *StreamQueue {
	return &StreamQueue{}
}

func (q *StreamQueue) Push(s beep.Streamer) {
	q.mu.Lock()
	q.queue = append(q.queue, s)
	q.mu.Unlock()
}

// Current 当前正在播放的 *Streamer
func (q *StreamQueue) Current() *Streamer {
	q.mu.Lock()
	defer q.mu.Unlock()
	if s, ok := q.current.(*Streamer); ok {
		return s
	}
	return nil
}

// StopCurrent 停止当前 stream，继续播放队列中的下一个
func (q *StreamQueue) StopCurrent() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if s, ok := q.current.(*Streamer); ok {
		s.Cancel()
	}
}

func (q *StreamQueue) Stream(samples [][2]float64) (n int, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.current == nil {
			if len(q.queue) == 0 {
				return 0, true
			}
			q.current = q.queue[0]
			q.queue = q.queue[1:]
		}

		n, ok = q.current.Stream(samples)
		if !ok {
			q.current = nil
			continue
		}
		return n, ok
	}
}

func (q *StreamQueue) Err() error { return nil }
