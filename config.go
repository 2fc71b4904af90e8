package vkframe

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate and every loader built on it.
var ErrInvalidConfig = errors.New("invalid config")

// MaxFramesInFlight bounds Config.FramesInFlight.
const MaxFramesInFlight = 8

// EnvPrefix prefixes every environment override read by ApplyEnv.
const EnvPrefix = "VKFRAME_"

// WindowConfig describes the demo window. The core never reads it.
type WindowConfig struct {
	Width  int    `yaml:"width" mapstructure:"width"`
	Height int    `yaml:"height" mapstructure:"height"`
	Title  string `yaml:"title" mapstructure:"title"`
}

// Config is the full render context configuration.
type Config struct {
	// FramesInFlight is F, the number of frame slots.
	FramesInFlight int `yaml:"frames_in_flight" mapstructure:"frames_in_flight"`
	// ImageCount is the requested swap chain depth. Zero asks for the
	// surface minimum plus one.
	ImageCount       uint32        `yaml:"image_count" mapstructure:"image_count"`
	VSync            bool          `yaml:"vsync" mapstructure:"vsync"`
	PreferLowLatency bool          `yaml:"prefer_low_latency" mapstructure:"prefer_low_latency"`
	DepthAttachment  bool          `yaml:"depth_attachment" mapstructure:"depth_attachment"`
	FenceTimeout     time.Duration `yaml:"fence_timeout" mapstructure:"fence_timeout"` // 0 waits forever
	ClearColor       [4]float32    `yaml:"clear_color" mapstructure:"clear_color"`

	Window WindowConfig `yaml:"window" mapstructure:"window"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

func DefaultConfig() Config {
	return Config{
		FramesInFlight:  2,
		DepthAttachment: true,
		ClearColor:      [4]float32{0, 0, 0, 1},
		Window: WindowConfig{
			Width:  800,
			Height: 600,
			Title:  "vkframe",
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "console",
		},
	}
}

// LoadConfig layers the defaults, the YAML file at path (skipped when
// empty), the usage bag (skipped when nil) and VKFRAME_* environment
// variables, then validates the result.
func LoadConfig(path string, usage *Usage) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, pkgerrors.Wrapf(err, "read config %s", path)
		}
		if err := cfg.ApplyYAML(data); err != nil {
			return cfg, pkgerrors.Wrapf(err, "parse config %s", path)
		}
	}
	if usage != nil {
		if err := cfg.ApplyUsage(usage); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyYAML overlays the keys present in data.
func (c *Config) ApplyYAML(data []byte) error {
	return yaml.Unmarshal(data, c)
}

// ApplyUsage overlays the properties of u and its linked sections.
func (c *Config) ApplyUsage(u *Usage) error {
	return pkgerrors.Wrapf(c.decode(u.Map()), "decode usage %s", u.Name)
}

// envKeys maps environment suffixes onto decoder paths.
var envKeys = map[string][]string{
	"FRAMES_IN_FLIGHT": {"frames_in_flight"},
	"IMAGE_COUNT":      {"image_count"},
	"VSYNC":            {"vsync"},
	"LOW_LATENCY":      {"prefer_low_latency"},
	"DEPTH":            {"depth_attachment"},
	"FENCE_TIMEOUT":    {"fence_timeout"},
	"WINDOW_WIDTH":     {"window", "width"},
	"WINDOW_HEIGHT":    {"window", "height"},
	"WINDOW_TITLE":     {"window", "title"},
	"LOG_LEVEL":        {"log", "level"},
	"LOG_ENCODING":     {"log", "encoding"},
}

// ApplyEnv overlays VKFRAME_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	input := make(map[string]interface{})
	for suffix, path := range envKeys {
		value, ok := lookup(EnvPrefix + suffix)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if len(path) == 1 {
			input[path[0]] = value
			continue
		}
		section, _ := input[path[0]].(map[string]interface{})
		if section == nil {
			section = make(map[string]interface{})
			input[path[0]] = section
		}
		section[path[1]] = value
	}
	if len(input) == 0 {
		return nil
	}
	return pkgerrors.Wrap(c.decode(input), "decode environment")
}

func (c *Config) decode(input map[string]interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           c,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// Validate reports the first out-of-range field.
func (c Config) Validate() error {
	if c.FramesInFlight < 1 || c.FramesInFlight > MaxFramesInFlight {
		return pkgerrors.Wrapf(ErrInvalidConfig, "frames_in_flight %d outside [1, %d]", c.FramesInFlight, MaxFramesInFlight)
	}
	if c.FenceTimeout < 0 {
		return pkgerrors.Wrapf(ErrInvalidConfig, "negative fence_timeout %s", c.FenceTimeout)
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return pkgerrors.Wrapf(ErrInvalidConfig, "window size %dx%d", c.Window.Width, c.Window.Height)
	}
	return nil
}

// Clear is the fixed clear value applied by the command recorder.
func (c Config) Clear() ClearValue {
	return ClearValue{Color: c.ClearColor, Depth: 1.0}
}

// Desired is the window size as a swap chain extent request.
func (c Config) Desired() Extent {
	return Extent{Width: uint32(c.Window.Width), Height: uint32(c.Window.Height)}
}
