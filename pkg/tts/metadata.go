package tts

import (
	"encoding/json"
	"fmt"
	"time"
)

// tick 服务端时间单位为 100ns
const tick = 100 * time.Nanosecond

// 混合形状动画帧率
const blendShapeFrameRate = 60

// BlendShapeKeys 动画帧中权重的顺序
var BlendShapeKeys = [55]string{
	"eyeBlinkLeft", "eyeLookDownLeft", "eyeLookInLeft", "eyeLookOutLeft", "eyeLookUpLeft", "eyeSquintLeft", "eyeWideLeft",
	"eyeBlinkRight", "eyeLookDownRight", "eyeLookInRight", "eyeLookOutRight", "eyeLookUpRight", "eyeSquintRight", "eyeWideRight",
	"jawForward", "jawLeft", "jawRight", "jawOpen", "mouthClose", "mouthFunnel", "mouthPucker", "mouthLeft", "mouthRight",
	"mouthSmileLeft", "mouthSmileRight", "mouthFrownLeft", "mouthFrownRight", "mouthDimpleLeft", "mouthDimpleRight",
	"mouthStretchLeft", "mouthStretchRight", "mouthRollLower", "mouthRollUpper", "mouthShrugLower", "mouthShrugUpper",
	"mouthPressLeft", "mouthPressRight", "mouthLowerDownLeft", "mouthLowerDownRight", "mouthUpperUpLeft", "mouthUpperUpRight",
	"browDownLeft", "browDownRight", "browInnerUp", "browOuterUpLeft", "browOuterUpRight", "cheekPuff", "cheekSquintLeft",
	"cheekSquintRight", "noseSneerLeft", "noseSneerRight", "tongueOut", "headRoll", "leftEyeRoll", "rightEyeRoll",
}

type metadataMessage struct {
	Metadata []metadataEntry `json:"Metadata"`
}

type metadataEntry struct {
	Type string          `json:"Type"`
	Data json.RawMessage `json:"Data"`
}

type boundaryData struct {
	Offset   int64 `json:"Offset"`
	Duration int64 `json:"Duration"`
	Text     struct {
		Text string `json:"Text"`
	} `json:"text"`
}

type visemeData struct {
	Offset   int64 `json:"Offset"`
	VisemeID *int  `json:"VisemeId"`
	// AnimationChunk 是再次编码为字符串的 JSON
	AnimationChunk string `json:"AnimationChunk"`
}

type animationChunk struct {
	FrameIndex  int         `json:"FrameIndex"`
	BlendShapes [][]float64 `json:"BlendShapes"`
}

// parseMetadata 解析 audio.metadata 正文。未知类型跳过并返回其名称。
func parseMetadata(payload []byte) (events []Event, skipped []string, err error) {
	var msg metadataMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, nil, fmt.Errorf("decode metadata: %w", err)
	}
	if msg.Metadata == nil {
		return nil, nil, fmt.Errorf("decode metadata: missing Metadata field")
	}

	for _, entry := range msg.Metadata {
		switch entry.Type {
		case "WordBoundary", "SentenceBoundary":
			var d boundaryData
			if err := json.Unmarshal(entry.Data, &d); err != nil {
				return nil, nil, fmt.Errorf("decode %s: %w", entry.Type, err)
			}
			offset, duration := time.Duration(d.Offset)*tick, time.Duration(d.Duration)*tick
			if entry.Type == "WordBoundary" {
				events = append(events, WordBoundary{Offset: offset, Duration: duration, Text: d.Text.Text})
			} else {
				events = append(events, SentenceBoundary{Offset: offset, Duration: duration, Text: d.Text.Text})
			}
		case "Viseme":
			ev, err := parseViseme(entry.Data)
			if err != nil {
				return nil, nil, err
			}
			events = append(events, ev)
		default:
			skipped = append(skipped, entry.Type)
		}
	}
	return events, skipped, nil
}

func parseViseme(data json.RawMessage) (Viseme, error) {
	var d visemeData
	if err := json.Unmarshal(data, &d); err != nil {
		return Viseme{}, fmt.Errorf("decode Viseme: %w", err)
	}

	ev := Viseme{ID: -1, Offset: time.Duration(d.Offset) * tick}
	if d.VisemeID != nil {
		ev.ID = *d.VisemeID
	}
	if d.AnimationChunk == "" {
		return ev, nil
	}

	var chunk animationChunk
	if err := json.Unmarshal([]byte(d.AnimationChunk), &chunk); err != nil {
		return Viseme{}, fmt.Errorf("decode AnimationChunk: %w", err)
	}
	ev.Animation = make([]BlendShapeFrame, 0, len(chunk.BlendShapes))
	for i, weights := range chunk.BlendShapes {
		if len(weights) > len(BlendShapeKeys) {
			return Viseme{}, fmt.Errorf("decode AnimationChunk: frame has %d weights, want at most %d", len(weights), len(BlendShapeKeys))
		}
		frame := BlendShapeFrame{
			Offset:  time.Duration(chunk.FrameIndex+i) * time.Second / blendShapeFrameRate,
			Weights: make([]BlendShape, len(weights)),
		}
		for k, w := range weights {
			frame.Weights[k] = BlendShape{Key: BlendShapeKeys[k], Weight: w}
		}
		ev.Animation = append(ev.Animation, frame)
	}
	return ev, nil
}
