package tts

import (
	"fmt"
	"slices"
)

// Container 音频封装
type Container int

const (
	ContainerRaw Container = iota + 1
	ContainerOgg
)

// Encoding 音频编码
type Encoding int

const (
	EncodingPCM Encoding = iota + 1
	EncodingALaw
	EncodingMuLaw
	EncodingOpus
)

// AudioFormat 服务端支持的输出格式，Name 即 synthesis.context 里的 outputFormat
type AudioFormat struct {
	Name       string
	SampleRate int
	Channels   int
	// BitDepth 仅对 raw 格式有意义
	BitDepth  int
	Container Container
	Encoding  Encoding
}

// IsPCM 是否为可直接播放的 16 位 PCM
func (f AudioFormat) IsPCM() bool {
	return f.Container == ContainerRaw && f.Encoding == EncodingPCM
}

func (f AudioFormat) String() string { return f.Name }

// 预定义格式
var (
	FormatRaw8kALaw  = AudioFormat{Name: "raw-8khz-8bit-mono-alaw", SampleRate: 8000, Channels: 1, BitDepth: 8, Container: ContainerRaw, Encoding: EncodingALaw}
	FormatRaw8kMuLaw = AudioFormat{Name: "raw-8khz-8bit-mono-mulaw", SampleRate: 8000, Channels: 1, BitDepth: 8, Container: ContainerRaw, Encoding: EncodingMuLaw}
	FormatRaw8kPCM   = AudioFormat{Name: "raw-8khz-16bit-mono-pcm", SampleRate: 8000, Channels: 1, BitDepth: 16, Container: ContainerRaw, Encoding: EncodingPCM}
	FormatRaw16kPCM  = AudioFormat{Name: "raw-16khz-16bit-mono-pcm", SampleRate: 16000, Channels: 1, BitDepth: 16, Container: ContainerRaw, Encoding: EncodingPCM}
	FormatRaw22kPCM  = AudioFormat{Name: "raw-22050hz-16bit-mono-pcm", SampleRate: 22050, Channels: 1, BitDepth: 16, Container: ContainerRaw, Encoding: EncodingPCM}
	FormatRaw24kPCM  = AudioFormat{Name: "raw-24khz-16bit-mono-pcm", SampleRate: 24000, Channels: 1, BitDepth: 16, Container: ContainerRaw, Encoding: EncodingPCM}
	FormatRaw44kPCM  = AudioFormat{Name: "raw-44100hz-16bit-mono-pcm", SampleRate: 44100, Channels: 1, BitDepth: 16, Container: ContainerRaw, Encoding: EncodingPCM}
	FormatRaw48kPCM  = AudioFormat{Name: "raw-48khz-16bit-mono-pcm", SampleRate: 48000, Channels: 1, BitDepth: 16, Container: ContainerRaw, Encoding: EncodingPCM}
	FormatOgg16kOpus = AudioFormat{Name: "ogg-16khz-16bit-mono-opus", SampleRate: 16000, Channels: 1, Container: ContainerOgg, Encoding: EncodingOpus}
	FormatOgg24kOpus = AudioFormat{Name: "ogg-24khz-16bit-mono-opus", SampleRate: 24000, Channels: 1, Container: ContainerOgg, Encoding: EncodingOpus}
	FormatOgg48kOpus = AudioFormat{Name: "ogg-48khz-16bit-mono-opus", SampleRate: 48000, Channels: 1, Container: ContainerOgg, Encoding: EncodingOpus}
)

// DefaultFormat 未指定格式时使用
var DefaultFormat = FormatRaw48kPCM

// 同一封装内按采样率升序
var supportedFormats = []AudioFormat{
	FormatRaw8kALaw, FormatRaw8kMuLaw, FormatRaw8kPCM, FormatRaw16kPCM, FormatRaw22kPCM,
	FormatRaw24kPCM, FormatRaw44kPCM, FormatRaw48kPCM,
	FormatOgg16kOpus, FormatOgg24kOpus, FormatOgg48kOpus,
}

// LookupFormat 按 outputFormat 名称查找
func LookupFormat(name string) (AudioFormat, error) {
	for _, f := range supportedFormats {
		if f.Name == name {
			return f, nil
		}
	}
	return AudioFormat{}, fmt.Errorf("tts: unsupported audio format %q", name)
}

// ContainerPreference 一个可接受的封装及其编码
type ContainerPreference struct {
	Container Container
	Encoding  Encoding
}

// FormatPreference 调用方可接受的格式，nil 字段表示不限制
type FormatPreference struct {
	// Containers 按优先级排列
	Containers  []ContainerPreference
	SampleRates []int
	Channels    []int
}

// NegotiateFormat 选出第一个能满足偏好的封装；同一封装下取偏好中最高的可用采样率。
// 没有任何偏好时返回 DefaultFormat。
func NegotiateFormat(pref FormatPreference) (AudioFormat, bool) {
	if len(pref.Containers) == 0 {
		return DefaultFormat, true
	}

	var rates []int
	if pref.SampleRates != nil {
		rates = slices.Clone(pref.SampleRates)
		slices.Sort(rates)
		slices.Reverse(rates)
	}

	for _, c := range pref.Containers {
		if f, ok := matchContainer(c, rates, pref.Channels); ok {
			return f, true
		}
	}
	return AudioFormat{}, false
}

func matchContainer(c ContainerPreference, rates []int, channels []int) (AudioFormat, bool) {
	// 服务端只输出单声道
	if channels != nil && !slices.Contains(channels, 1) {
		return AudioFormat{}, false
	}

	var candidates []AudioFormat
	for _, f := range supportedFormats {
		if f.Container == c.Container && f.Encoding == c.Encoding {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return AudioFormat{}, false
	}

	if rates == nil {
		// 未指定采样率时取该封装的最高采样率
		return candidates[len(candidates)-1], true
	}
	for _, rate := range rates {
		for _, f := range candidates {
			if f.SampleRate == rate {
				return f, true
			}
		}
	}
	return AudioFormat{}, false
}
