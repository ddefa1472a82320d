package notify

import (
	"context"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/config"
)

// Tone 提示音中的一个音
type Tone struct {
	FrequencyHz float64       `json:"frequency_hz"`
	Offset      time.Duration `json:"offset"`
	Duration    time.Duration `json:"duration"`
}

// Chime 播放提示音（由浏览器会话实现）
type Chime interface {
	Play(ctx context.Context, tones []Tone) error
}

// DefaultTones 默认两段式提示音：830Hz 后接 1100Hz，每段 180ms
var DefaultTones = BuildTones([]float64{830, 1100}, 180*time.Millisecond)

// BuildTones 按顺序依次排列的音序列
func BuildTones(frequencies []float64, each time.Duration) []Tone {
	tones := make([]Tone, 0, len(frequencies))
	for i, hz := range frequencies {
		tones = append(tones, Tone{
			FrequencyHz: hz,
			Offset:      time.Duration(i) * each,
			Duration:    each,
		})
	}
	return tones
}

// TonesFrom 从配置构造音序列，配置为空时使用默认值
func TonesFrom(cfg config.NotificationConfig) []Tone {
	if len(cfg.ChimeTonesHz) == 0 || cfg.ChimeToneDuration <= 0 {
		return DefaultTones
	}
	return BuildTones(cfg.ChimeTonesHz, cfg.ChimeToneDuration)
}
