package domain

import (
	"context"
	"errors"
	"fmt"
)

type OverlayConfig struct {
	Counters    CountersConfig    `json:"counters"`
	Message     MessageConfig     `json:"message"`
	Celebration CelebrationConfig `json:"celebration"`
}

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type CounterStyle struct {
	Color       string `json:"color"`
	BorderColor string `json:"borderColor"`
	Label       string `json:"label,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

type CounterStyles struct {
	Kills     CounterStyle `json:"kills"`
	Extracted CounterStyle `json:"extracted"`
	KIA       CounterStyle `json:"kia"`
}

type CountersConfig struct {
	Enabled  bool          `json:"enabled"`
	Position Position      `json:"position"`
	Layout   string        `json:"layout"`
	Size     string        `json:"size"`
	Style    CounterStyles `json:"style"`
}

type MessageConfig struct {
	Enabled     bool   `json:"enabled"`
	Position    string `json:"position"`
	FontSize    int    `json:"fontSize"`
	Color       string `json:"color"`
	BorderColor string `json:"borderColor"`
	ScrollSpeed int    `json:"scrollSpeed"`
}

type CelebrationConfig struct {
	Enabled         bool   `json:"enabled"`
	Duration        int    `json:"duration"` // milliseconds
	TextSize        int    `json:"textSize"`
	EffectIntensity string `json:"effectIntensity"`
}

// DefaultOverlayConfig returns the factory overlay configuration.
func DefaultOverlayConfig() OverlayConfig {
	return OverlayConfig{
		Counters: CountersConfig{
			Enabled:  true,
			Position: Position{X: 20, Y: 20},
			Layout:   "horizontal",
			Size:     "medium",
			Style: CounterStyles{
				Kills:     CounterStyle{Color: "#4CAF50", BorderColor: "#4CAF50"},
				Extracted: CounterStyle{Color: "#FFC107", BorderColor: "#FFC107"},
				KIA:       CounterStyle{Color: "#F44336", BorderColor: "#F44336"},
			},
		},
		Message: MessageConfig{
			Enabled:     true,
			Position:    "bottom",
			FontSize:    32,
			Color:       "#FFC107",
			BorderColor: "#FFC107",
			ScrollSpeed: 15,
		},
		Celebration: CelebrationConfig{
			Enabled:         true,
			Duration:        5000,
			TextSize:        120,
			EffectIntensity: "normal",
		},
	}
}

// Validate rejects values the overlay pages cannot render.
func (c OverlayConfig) Validate() error {
	var errs []error
	if c.Message.FontSize < 0 {
		errs = append(errs, fmt.Errorf("message.fontSize must not be negative, got %d", c.Message.FontSize))
	}
	if c.Message.ScrollSpeed < 0 {
		errs = append(errs, fmt.Errorf("message.scrollSpeed must not be negative, got %d", c.Message.ScrollSpeed))
	}
	if c.Celebration.Duration < 0 {
		errs = append(errs, fmt.Errorf("celebration.duration must not be negative, got %d", c.Celebration.Duration))
	}
	if c.Celebration.TextSize < 0 {
		errs = append(errs, fmt.Errorf("celebration.textSize must not be negative, got %d", c.Celebration.TextSize))
	}
	return errors.Join(errs...)
}

// ConfigRepository persists the overlay configuration across restarts.
type ConfigRepository interface {
	// Load returns ErrConfigNotFound when nothing has been saved yet.
	Load(ctx context.Context) (*OverlayConfig, error)
	Save(ctx context.Context, config OverlayConfig) error
}
