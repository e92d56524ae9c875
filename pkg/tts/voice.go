package tts

import (
	"slices"
	"sync"
)

// VoiceProfile 一个音色的配置信息
type VoiceProfile struct {
	// ShortName 服务端的音色名，如 "en-US-JennyNeural"
	ShortName string
	Locale    string
	Gender    string

	Description string

	// SupportedStyles 支持的 mstts:express-as 风格，空表示不支持
	SupportedStyles []string

	// DefaultFormat 零值时使用 DefaultFormat
	DefaultFormat AudioFormat
}

// SupportsStyle 检查是否支持指定的说话风格
func (v *VoiceProfile) SupportsStyle(style string) bool {
	return slices.Contains(v.SupportedStyles, style)
}

// Format 音色的默认输出格式
func (v *VoiceProfile) Format() AudioFormat {
	if v.DefaultFormat.Name == "" {
		return DefaultFormat
	}
	return v.DefaultFormat
}

// 预定义音色
var (
	VoiceJenny = VoiceProfile{
		ShortName:       "en-US-JennyNeural",
		Locale:          "en-US",
		Gender:          "female",
		Description:     "美式英语女声",
		SupportedStyles: []string{"assistant", "chat", "customerservice", "newscast", "angry", "cheerful", "sad", "excited", "friendly", "terrified", "shouting", "unfriendly", "whispering", "hopeful"},
	}

	VoiceGuy = VoiceProfile{
		ShortName:       "en-US-GuyNeural",
		Locale:          "en-US",
		Gender:          "male",
		Description:     "美式英语男声",
		SupportedStyles: []string{"newscast", "angry", "cheerful", "sad", "excited", "friendly", "terrified", "shouting", "unfriendly", "whispering", "hopeful"},
	}

	VoiceSonia = VoiceProfile{
		ShortName:       "en-GB-SoniaNeural",
		Locale:          "en-GB",
		Gender:          "female",
		Description:     "英式英语女声",
		SupportedStyles: []string{"cheerful", "sad"},
	}

	VoiceXiaoxiao = VoiceProfile{
		ShortName:   "zh-CN-XiaoxiaoNeural",
		Locale:      "zh-CN",
		Gender:      "female",
		Description: "温柔女声",
		SupportedStyles: []string{
			"affectionate", "angry", "assistant", "calm", "chat", "cheerful", "customerservice",
			"disgruntled", "fearful", "gentle", "lyrical", "newscast", "poetry-reading", "sad", "serious",
		},
		DefaultFormat: FormatRaw24kPCM,
	}

	VoiceYunxi = VoiceProfile{
		ShortName:       "zh-CN-YunxiNeural",
		Locale:          "zh-CN",
		Gender:          "male",
		Description:     "阳光男声",
		SupportedStyles: []string{"angry", "assistant", "chat", "cheerful", "depressed", "disgruntled", "embarrassed", "fearful", "narration-relaxed", "newscast", "sad", "serious"},
		DefaultFormat:   FormatRaw24kPCM,
	}

	VoiceNanami = VoiceProfile{
		ShortName:       "ja-JP-NanamiNeural",
		Locale:          "ja-JP",
		Gender:          "female",
		Description:     "日语女声",
		SupportedStyles: []string{"chat", "cheerful", "customerservice"},
	}
)

var (
	registryMu    sync.RWMutex
	voiceRegistry = map[string]VoiceProfile{
		"jenny":    VoiceJenny,
		"guy":      VoiceGuy,
		"sonia":    VoiceSonia,
		"xiaoxiao": VoiceXiaoxiao,
		"yunxi":    VoiceYunxi,
		"nanami":   VoiceNanami,
	}
)

// GetVoice 按注册名或服务端音色名查找
func GetVoice(name string) (VoiceProfile, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if voice, ok := voiceRegistry[name]; ok {
		return voice, true
	}
	for _, voice := range voiceRegistry {
		if voice.ShortName == name {
			return voice, true
		}
	}
	return VoiceProfile{}, false
}

// RegisterVoice 运行时注册音色
func RegisterVoice(name string, voice VoiceProfile) {
	registryMu.Lock()
	defer registryMu.Unlock()
	voiceRegistry[name] = voice
}

// ListVoices 已注册的音色名，按字母排序
func ListVoices() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return sortedNames()
}

// FindVoicesByLocale 根据语言区域查找音色
func FindVoicesByLocale(locale string) []VoiceProfile {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var voices []VoiceProfile
	for _, name := range sortedNames() {
		if v := voiceRegistry[name]; v.Locale == locale {
			voices = append(voices, v)
		}
	}
	return voices
}

// FindVoicesByGender 根据性别查找音色
func FindVoicesByGender(gender string) []VoiceProfile {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var voices []VoiceProfile
	for _, name := range sortedNames() {
		if v := voiceRegistry[name]; v.Gender == gender {
			voices = append(voices, v)
		}
	}
	return voices
}

// sortedNames 调用方持有 registryMu
func sortedNames() []string {
	names := make([]string, 0, len(voiceRegistry))
	for name := range voiceRegistry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
