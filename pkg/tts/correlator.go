package tts

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"acss/internal/protocol"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const defaultTurnBuffer = 64

// pendingTurn 单个在途请求。frames 只由接收循环写入，只由 Stream 读取。
type pendingTurn struct {
	id     string
	frames chan *protocol.Frame

	// closed 由 Cancel 关闭，消费方不再读取
	closed    chan struct{}
	closeOnce sync.Once

	// aborted 由 InvalidateAll 关闭，cause 在关闭前写入
	aborted    chan struct{}
	abortOnce  sync.Once
	abortCause error

	// routed 已投递的帧数
	routed atomic.Uint64
}

func newPendingTurn(id string, buffer int) *pendingTurn {
	return &pendingTurn{
		id:      id,
		frames:  make(chan *protocol.Frame, buffer),
		closed:  make(chan struct{}),
		aborted: make(chan struct{}),
	}
}

func (t *pendingTurn) close() {
	t.closeOnce.Do(func() { close(t.closed) })
}

func (t *pendingTurn) abort(cause error) {
	t.abortOnce.Do(func() {
		t.abortCause = cause
		close(t.aborted)
	})
}

// Correlator 维护 request id 到在途 turn 的映射。
// 表由一把互斥锁保护，向 turn 通道发送时从不持锁。
type Correlator struct {
	mu     sync.Mutex
	turns  map[string]*pendingTurn
	buffer int
	log    *logrus.Entry
}

func NewCorrelator(buffer int, log *logrus.Entry) *Correlator {
	if buffer <= 0 {
		buffer = defaultTurnBuffer
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Correlator{
		turns:  make(map[string]*pendingTurn),
		buffer: buffer,
		log:    log,
	}
}

// Register 登记一个新的 turn
func (c *Correlator) Register(id string) (*pendingTurn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.turns[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRequestID, id)
	}
	t := newPendingTurn(id, c.buffer)
	c.turns[id] = t
	pendingTurns.Add(context.Background(), 1)
	return t, nil
}

// Route 把帧投递给对应的 turn。通道满时阻塞，直到消费方读取、
// turn 被取消或失效、或 ctx 结束。终止帧投递后注销该 turn。
// 找不到 turn 的帧被丢弃，只记录日志和指标。
func (c *Correlator) Route(ctx context.Context, frame *protocol.Frame) error {
	c.mu.Lock()
	t, ok := c.turns[frame.RequestID]
	c.mu.Unlock()

	if !ok {
		c.drop(ctx, frame, "no pending turn")
		return nil
	}

	select {
	case t.frames <- frame:
		t.routed.Add(1)
	case <-t.closed:
		c.drop(ctx, frame, "turn cancelled")
		return nil
	case <-t.aborted:
		c.drop(ctx, frame, "turn aborted")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	if frame.Kind.IsTerminal() {
		c.remove(t)
	}
	return nil
}

// Cancel 主动注销 turn，之后到达的同 id 帧按“不存在”处理
func (c *Correlator) Cancel(id string) {
	c.mu.Lock()
	t, ok := c.turns[id]
	c.mu.Unlock()

	if ok {
		c.release(t)
	}
}

// release 注销并关闭指定 turn。表中的同 id 条目已被替换时不删除。
func (c *Correlator) release(t *pendingTurn) {
	if c.remove(t) {
		c.log.WithField("request_id", t.id).Debugf("tts: turn cancelled after %d frames", t.routed.Load())
	}
	t.close()
}

// InvalidateAll 注销全部 turn，每个 turn 的消费方在读完已缓冲的帧后
// 收到一个 ErrorEvent{Kind: cause}
func (c *Correlator) InvalidateAll(cause error) {
	c.mu.Lock()
	turns := c.turns
	c.turns = make(map[string]*pendingTurn)
	c.mu.Unlock()

	for id, t := range turns {
		t.abort(cause)
		pendingTurns.Add(context.Background(), -1)
		c.log.WithField("request_id", id).Debugf("tts: turn invalidated: %v", cause)
	}
}

// Len 在途 turn 数
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// remove 只在表中仍是同一个 turn 时删除
func (c *Correlator) remove(t *pendingTurn) bool {
	c.mu.Lock()
	cur, ok := c.turns[t.id]
	removed := ok && cur == t
	if removed {
		delete(c.turns, t.id)
	}
	c.mu.Unlock()

	if removed {
		pendingTurns.Add(context.Background(), -1)
	}
	return removed
}

func (c *Correlator) drop(ctx context.Context, frame *protocol.Frame, reason string) {
	droppedFrames.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", frame.Kind.String()),
		attribute.String("reason", reason),
	))
	c.log.WithFields(logrus.Fields{
		"request_id": frame.RequestID,
		"path":       frame.Path,
	}).Debugf("tts: dropping frame: %s", reason)
}
