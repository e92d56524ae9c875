package tts

import "errors"

// 调用方误用
var (
	ErrDuplicateRequestID = errors.New("tts: duplicate request id")
	ErrAlreadyConsumed    = errors.New("tts: stream already consumed")
	ErrStreamClosed       = errors.New("tts: stream closed")
)

// 单个 turn 的终止错误，以 ErrorEvent 的形式出现在事件序列里
var (
	ErrOutOfOrderDelivery        = errors.New("tts: out of order delivery")
	ErrServerReported            = errors.New("tts: server reported error")
	ErrUnexpectedMultipleStreams = errors.New("tts: unexpected multiple audio streams")
)

// 连接级错误
var (
	ErrConnectionLost         = errors.New("tts: connection lost")
	ErrConnectionFailed       = errors.New("tts: connection failed")
	ErrAuthenticationRejected = errors.New("tts: authentication rejected")
	ErrSessionNotConnected    = errors.New("tts: session not connected")
)
