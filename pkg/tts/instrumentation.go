package tts

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "acss/pkg/tts"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
)

var (
	droppedFrames, _ = meter.Int64Counter("tts.frames.dropped",
		metric.WithDescription("Frames dropped because no pending turn matched their request id"))
	decodeErrors, _ = meter.Int64Counter("tts.frames.decode_errors",
		metric.WithDescription("Inbound messages that failed to decode"))
	pendingTurns, _ = meter.Int64UpDownCounter("tts.turns.pending",
		metric.WithDescription("Turns registered and not yet terminated"))
)
