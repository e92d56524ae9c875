package tts

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"acss/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// routeAll 登记 id 并把帧依次投递，返回对应的 Stream
func routeAll(t *testing.T, id string, frames ...*protocol.Frame) (*Stream, *Correlator) {
	t.Helper()
	c := NewCorrelator(len(frames)+1, testLogger())
	turn, err := c.Register(id)
	require.NoError(t, err)
	for _, f := range frames {
		require.NoError(t, c.Route(context.Background(), f))
	}
	return newStream(turn, c, nil, testLogger()), c
}

func TestStreamAssemblesTurn(t *testing.T) {
	const id = "t1"
	wordBoundary := `{"Metadata":[{"Type":"WordBoundary","Data":{"Offset":1000000,"Duration":2500000,"text":{"Text":"hello","Length":5,"BoundaryType":"WordBoundary"}}}]}`
	viseme := `{"Metadata":[{"Type":"Viseme","Data":{"Offset":500000,"VisemeId":7}}]}`

	tests := []struct {
		name   string
		frames func(t *testing.T) []*protocol.Frame
		want   []Event
	}{
		{
			name: "in order chunks then turn end",
			frames: func(t *testing.T) []*protocol.Frame {
				return []*protocol.Frame{
					textFrame(t, protocol.PathTurnStart, id, `{"context":{"serviceTag":"x"}}`),
					audioFrame(t, id, 0),
					audioFrame(t, id, 1),
					audioFrame(t, id, 2),
					turnEndFrame(t, id),
				}
			},
			want: []Event{
				AudioChunk{Data: []byte{0, 1}, Sequence: 0},
				AudioChunk{Data: []byte{1, 2}, Sequence: 1},
				AudioChunk{Data: []byte{2, 3}, Sequence: 2},
				TurnEnd{},
			},
		},
		{
			name: "skipped chunk is terminal",
			frames: func(t *testing.T) []*protocol.Frame {
				return []*protocol.Frame{
					audioFrame(t, id, 0),
					audioFrame(t, id, 2),
					audioFrame(t, id, 3),
					turnEndFrame(t, id),
				}
			},
			want: []Event{
				AudioChunk{Data: []byte{0, 1}, Sequence: 0},
				ErrorEvent{Kind: ErrOutOfOrderDelivery, Detail: "expected chunk 1, got 2"},
			},
		},
		{
			name: "duplicate chunk is terminal",
			frames: func(t *testing.T) []*protocol.Frame {
				return []*protocol.Frame{
					audioFrame(t, id, 0),
					audioFrame(t, id, 0),
				}
			},
			want: []Event{
				AudioChunk{Data: []byte{0, 1}, Sequence: 0},
				ErrorEvent{Kind: ErrOutOfOrderDelivery, Detail: "expected chunk 1, got 0"},
			},
		},
		{
			name: "unnumbered chunks are numbered in arrival order",
			frames: func(t *testing.T) []*protocol.Frame {
				return []*protocol.Frame{
					unnumberedAudioFrame(t, id, []byte("ab")),
					unnumberedAudioFrame(t, id, []byte("cd")),
					turnEndFrame(t, id),
				}
			},
			want: []Event{
				AudioChunk{Data: []byte("ab"), Sequence: 0},
				AudioChunk{Data: []byte("cd"), Sequence: 1},
				TurnEnd{},
			},
		},
		{
			name: "metadata is passed through without sequence checks",
			frames: func(t *testing.T) []*protocol.Frame {
				return []*protocol.Frame{
					textFrame(t, protocol.PathAudioMetadata, id, viseme),
					audioFrame(t, id, 0),
					textFrame(t, protocol.PathAudioMetadata, id, wordBoundary),
					textFrame(t, protocol.PathAudioMetadata, id, `{not json`),
					textFrame(t, protocol.PathAudioMetadata, id, `{"Metadata":[{"Type":"SessionEnd","Data":{}}]}`),
					turnEndFrame(t, id),
				}
			},
			want: []Event{
				Viseme{ID: 7, Offset: 50 * time.Millisecond},
				AudioChunk{Data: []byte{0, 1}, Sequence: 0},
				WordBoundary{Offset: 100 * time.Millisecond, Duration: 250 * time.Millisecond, Text: "hello"},
				TurnEnd{},
			},
		},
		{
			name: "server error",
			frames: func(t *testing.T) []*protocol.Frame {
				return []*protocol.Frame{
					audioFrame(t, id, 0),
					textFrame(t, protocol.PathError, id, "quota exceeded"),
				}
			},
			want: []Event{
				AudioChunk{Data: []byte{0, 1}, Sequence: 0},
				ErrorEvent{Kind: ErrServerReported, Detail: "quota exceeded"},
			},
		},
		{
			name: "second audio stream",
			frames: func(t *testing.T) []*protocol.Frame {
				return []*protocol.Frame{
					textFrame(t, protocol.PathResponse, id, `{"audio":{"type":"inline","streamId":"S1"}}`),
					audioFrame(t, id, 0),
					textFrame(t, protocol.PathResponse, id, `{"audio":{"type":"inline","streamId":"S1"}}`),
					textFrame(t, protocol.PathResponse, id, `{"audio":{"type":"inline","streamId":"S2"}}`),
					turnEndFrame(t, id),
				}
			},
			want: []Event{
				AudioChunk{Data: []byte{0, 1}, Sequence: 0},
				ErrorEvent{Kind: ErrUnexpectedMultipleStreams, Detail: "stream S1, then S2"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream, c := routeAll(t, id, tt.frames(t)...)
			assert.Equal(t, tt.want, collect(t, stream))
			assert.Equal(t, 0, c.Len())
		})
	}
}

func TestStreamLocalTerminalReleasesTurn(t *testing.T) {
	c := NewCorrelator(4, testLogger())
	turn, err := c.Register("a")
	require.NoError(t, err)
	stream := newStream(turn, c, nil, testLogger())

	ctx := context.Background()
	require.NoError(t, c.Route(ctx, audioFrame(t, "a", 5)))

	ev, err := stream.Recv(ctx)
	require.NoError(t, err)
	assert.True(t, errors.Is(ev.(ErrorEvent), ErrOutOfOrderDelivery))
	assert.Equal(t, 0, c.Len())

	// 终止后到达的帧不会再产生事件
	require.NoError(t, c.Route(ctx, turnEndFrame(t, "a")))
	_, err = stream.Recv(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamEventsSingleConsumption(t *testing.T) {
	stream, _ := routeAll(t, "a", audioFrame(t, "a", 0), turnEndFrame(t, "a"))

	var got []Event
	for ev, err := range stream.Events(context.Background()) {
		require.NoError(t, err)
		got = append(got, ev)
	}
	assert.Equal(t, []Event{AudioChunk{Data: []byte{0, 1}, Sequence: 0}, TurnEnd{}}, got)

	var errs []error
	for ev, err := range stream.Events(context.Background()) {
		assert.Nil(t, ev)
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrAlreadyConsumed)
}

func TestStreamEventsAfterRecv(t *testing.T) {
	stream, _ := routeAll(t, "a", audioFrame(t, "a", 0), turnEndFrame(t, "a"))

	_, err := stream.Recv(context.Background())
	require.NoError(t, err)

	for _, err := range stream.Events(context.Background()) {
		assert.ErrorIs(t, err, ErrAlreadyConsumed)
	}

	stream2, _ := routeAll(t, "b", turnEndFrame(t, "b"))
	for range stream2.Events(context.Background()) {
	}
	_, err = stream2.Recv(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyConsumed)
}

func TestStreamBreakCancelsTurn(t *testing.T) {
	stream, c := routeAll(t, "a", audioFrame(t, "a", 0), audioFrame(t, "a", 1))
	require.Equal(t, 1, c.Len())

	for range stream.Events(context.Background()) {
		break
	}
	assert.Equal(t, 0, c.Len())

	// 取消后的帧按不存在处理
	require.NoError(t, c.Route(context.Background(), turnEndFrame(t, "a")))
}

func TestStreamClose(t *testing.T) {
	stream, c := routeAll(t, "a", audioFrame(t, "a", 0))

	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
	assert.Equal(t, 0, c.Len())

	_, err := stream.Recv(context.Background())
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestStreamCloseUnblocksRecv(t *testing.T) {
	stream, _ := routeAll(t, "a")

	errc := make(chan error, 1)
	go func() {
		_, err := stream.Recv(context.Background())
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, stream.Close())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrStreamClosed)
	case <-time.After(time.Second):
		t.Fatal("Recv still blocked after Close")
	}
}

func TestStreamRecvHonorsContext(t *testing.T) {
	stream, c := routeAll(t, "a")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := stream.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	// 超时不会注销 turn，由调用方决定是否 Close
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, "a", stream.RequestID())
}
