package tts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"acss/internal/protocol"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Stream 单个 turn 的事件序列。只允许一个消费者，不可重放。
//
// 序列以 TurnEnd 或 ErrorEvent 结束，之后 Recv 返回 io.EOF。
// ErrorEvent 作为事件返回，err 只用于流本身的错误
// （ctx 结束、ErrStreamClosed、ErrAlreadyConsumed）。
type Stream struct {
	turn       *pendingTurn
	correlator *Correlator
	log        *logrus.Entry

	span     trace.Span
	spanOnce sync.Once

	closed    chan struct{}
	closeOnce sync.Once

	recvStarted atomic.Bool
	iterStarted atomic.Bool

	// span 统计，Close 可能在其他 goroutine 调用
	chunks     atomic.Int64
	audioBytes atomic.Int64

	// 以下字段只由消费者 goroutine 访问
	pending  []Event
	done     bool
	nextSeq  uint64
	streamID string
}

func newStream(turn *pendingTurn, c *Correlator, span trace.Span, log *logrus.Entry) *Stream {
	return &Stream{
		turn:       turn,
		correlator: c,
		span:       span,
		log:        log.WithField("request_id", turn.id),
		closed:     make(chan struct{}),
	}
}

// RequestID 本次请求的 X-RequestId
func (s *Stream) RequestID() string { return s.turn.id }

// Recv 阻塞直到下一个事件
func (s *Stream) Recv(ctx context.Context) (Event, error) {
	if s.iterStarted.Load() {
		return nil, ErrAlreadyConsumed
	}
	s.recvStarted.Store(true)
	return s.recv(ctx)
}

// Events 以 range-over-func 的方式消费。提前 break 或序列结束都会关闭流。
// 同一个流只能调用一次，重复调用（或已经调用过 Recv）时只产出 ErrAlreadyConsumed。
func (s *Stream) Events(ctx context.Context) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		if s.recvStarted.Load() || !s.iterStarted.CompareAndSwap(false, true) {
			yield(nil, ErrAlreadyConsumed)
			return
		}
		defer s.Close()

		for {
			ev, err := s.recv(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// Close 放弃消费，注销 turn。可重复调用。
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.correlator.release(s.turn)
		s.endSpan(nil)
	})
	return nil
}

func (s *Stream) recv(ctx context.Context) (Event, error) {
	for {
		if s.isClosed() {
			return nil, ErrStreamClosed
		}
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			if isTerminal(ev) {
				s.finish(ev)
			}
			return ev, nil
		}
		if s.done {
			return nil, io.EOF
		}

		frame, err := s.next(ctx)
		if err != nil {
			var abort abortedError
			if errors.As(err, &abort) {
				s.pending = append(s.pending, ErrorEvent{Kind: abort.cause})
				continue
			}
			return nil, err
		}
		s.pending = append(s.pending, s.assemble(frame)...)
	}
}

type abortedError struct{ cause error }

func (e abortedError) Error() string { return e.cause.Error() }

// next 优先读取已缓冲的帧，turn 失效后仍会先读完缓冲
func (s *Stream) next(ctx context.Context) (*protocol.Frame, error) {
	select {
	case f := <-s.turn.frames:
		return f, nil
	default:
	}

	select {
	case f := <-s.turn.frames:
		return f, nil
	case <-s.turn.aborted:
		select {
		case f := <-s.turn.frames:
			return f, nil
		default:
		}
		return nil, abortedError{cause: s.turn.abortCause}
	case <-s.closed:
		return nil, ErrStreamClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Stream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// assemble 把一帧转换为零个或多个事件
func (s *Stream) assemble(f *protocol.Frame) []Event {
	switch f.Kind {
	case protocol.KindTurnStart:
		return nil

	case protocol.KindAudio:
		if id, ok := f.Header(protocol.HeaderStreamID); ok && id != "" {
			if ev, bad := s.checkStreamID(id); bad {
				return []Event{ev}
			}
		}
		seq := s.nextSeq
		if v, ok := f.Header(protocol.HeaderSequence); ok {
			got, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return []Event{ErrorEvent{Kind: ErrOutOfOrderDelivery, Detail: fmt.Sprintf("bad sequence %q", v)}}
			}
			if got != s.nextSeq {
				return []Event{ErrorEvent{Kind: ErrOutOfOrderDelivery, Detail: fmt.Sprintf("expected chunk %d, got %d", s.nextSeq, got)}}
			}
		}
		s.nextSeq++
		s.chunks.Add(1)
		s.audioBytes.Add(int64(len(f.Payload)))
		return []Event{AudioChunk{Data: f.Payload, Sequence: seq}}

	case protocol.KindMetadata:
		events, skipped, err := parseMetadata(f.Payload)
		if err != nil {
			s.log.Warnf("tts: skipping metadata frame: %v", err)
			return nil
		}
		for _, t := range skipped {
			s.log.Debugf("tts: skipping metadata of type %q", t)
		}
		return events

	case protocol.KindResponse:
		id := responseStreamID(f)
		if id == "" {
			return nil
		}
		if ev, bad := s.checkStreamID(id); bad {
			return []Event{ev}
		}
		return nil

	case protocol.KindTurnEnd:
		return []Event{TurnEnd{}}

	case protocol.KindError:
		return []Event{ErrorEvent{Kind: ErrServerReported, Detail: errorDetail(f)}}

	default:
		s.log.Warnf("tts: unexpected %s frame for turn", f.Kind)
		return nil
	}
}

// checkStreamID 一个 turn 只应有一条音频流
func (s *Stream) checkStreamID(id string) (Event, bool) {
	if s.streamID == "" {
		s.streamID = id
		return nil, false
	}
	if s.streamID != id {
		return ErrorEvent{Kind: ErrUnexpectedMultipleStreams, Detail: fmt.Sprintf("stream %s, then %s", s.streamID, id)}, true
	}
	return nil, false
}

// finish 在终止事件交给消费者时调用
func (s *Stream) finish(ev Event) {
	s.done = true
	s.pending = nil
	// 由本地检查产生的终止事件不会经过 Correlator 的注销
	s.correlator.release(s.turn)

	var err error
	if e, ok := ev.(ErrorEvent); ok {
		err = e
	}
	s.endSpan(err)
}

func (s *Stream) endSpan(err error) {
	s.spanOnce.Do(func() {
		if s.span == nil {
			return
		}
		s.span.SetAttributes(
			attribute.Int64("tts.audio_chunks", s.chunks.Load()),
			attribute.Int64("tts.audio_bytes", s.audioBytes.Load()),
		)
		if err != nil {
			s.span.RecordError(err)
			s.span.SetStatus(codes.Error, err.Error())
		}
		s.span.End()
	})
}

type responseBody struct {
	Audio struct {
		Type     string `json:"type"`
		StreamID string `json:"streamId"`
	} `json:"audio"`
}

func responseStreamID(f *protocol.Frame) string {
	var body responseBody
	if len(f.Payload) > 0 && json.Unmarshal(f.Payload, &body) == nil && body.Audio.StreamID != "" {
		return body.Audio.StreamID
	}
	id, _ := f.Header(protocol.HeaderStreamID)
	return id
}

func errorDetail(f *protocol.Frame) string {
	if detail := strings.TrimSpace(string(f.Payload)); detail != "" {
		return detail
	}
	return "server closed the turn with an error"
}
