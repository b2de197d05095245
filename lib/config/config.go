package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fosdem/yuvstream/lib/encdec"
	"github.com/fosdem/yuvstream/lib/rendering"
	"github.com/fosdem/yuvstream/lib/rendering/shaders"
	"github.com/fosdem/yuvstream/lib/utils"
	yaml "github.com/goccy/go-yaml"
)

type Config struct {
	Frames encdec.FrameCfg
	Source *SourceCfg
	Render *RenderCfg
	Window *WindowCfg
	Api    *ApiCfg
	Log    *LogCfg
}

func Parse(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", filename, err)
	}
	defer f.Close()

	absFilename, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("somehow, %s is malformed: %w", filename, err)
	}
	unmarshalBase = filepath.Dir(absFilename)

	m := yaml.NewDecoder(f, yaml.DisallowUnknownField())
	cfg := &Config{}
	err = m.Decode(cfg)
	if err != nil {
		return nil, fmt.Errorf("could not parse %s: %w", filename, err)
	}
	cfg.setDefaults()
	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default is the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Frames.Layout == "" {
		c.Frames.Layout = encdec.I420.Name
	}
	if c.Frames.NumAllocatedFrames == 0 {
		c.Frames.NumAllocatedFrames = 3
	}
	if c.Source == nil {
		c.Source = &SourceCfg{Type: "stdin"}
	}
	if c.Source.Rate == 0 {
		c.Source.Rate = 25
	}
	if c.Render == nil {
		c.Render = &RenderCfg{}
	}
	if c.Render.Variant == "" {
		c.Render.Variant = shaders.MultiPlane.String()
	}
	if c.Render.StagingBuffers == 0 {
		c.Render.StagingBuffers = rendering.DefaultStagingDepth
	}
	if c.Render.FenceTimeoutMs == 0 {
		c.Render.FenceTimeoutMs = int(rendering.DefaultFenceTimeout.Milliseconds())
	}
	if c.Render.StartupTimeoutMs == 0 {
		c.Render.StartupTimeoutMs = 2000
	}
	if c.Render.ClearColour == "" {
		c.Render.ClearColour = "#000000ff"
	}
	if c.Window == nil {
		c.Window = &WindowCfg{}
	}
	if c.Window.Title == "" {
		c.Window.Title = "yuvstream"
	}
	if c.Window.Width == 0 {
		c.Window.Width = c.Frames.Width
	}
	if c.Window.Height == 0 {
		c.Window.Height = c.Frames.Height
	}
	if c.Log == nil {
		c.Log = &LogCfg{Level: "info"}
	}
}

func (c *Config) Validate() error {
	err := c.Frames.Validate()
	if err != nil {
		return fmt.Errorf("invalid frame config: %w", err)
	}
	err = c.Source.Validate()
	if err != nil {
		return fmt.Errorf("invalid source config: %w", err)
	}
	err = c.Render.Validate()
	if err != nil {
		return fmt.Errorf("invalid render config: %w", err)
	}
	err = c.Window.Validate()
	if err != nil {
		return fmt.Errorf("invalid window config: %w", err)
	}
	if c.Api != nil {
		err = c.Api.Validate()
		if err != nil {
			return fmt.Errorf("invalid api config: %w", err)
		}
	}
	err = c.Log.Validate()
	if err != nil {
		return fmt.Errorf("invalid log config: %w", err)
	}
	return nil
}

func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Frames: %dx%d %s\n", c.Frames.Width, c.Frames.Height, c.Frames.Layout)
	fmt.Fprintf(&b, "Source: %s", c.Source.Type)
	if c.Source.Path != "" {
		fmt.Fprintf(&b, " %s", c.Source.Path)
	}
	fmt.Fprintf(&b, " at %d fps\n", c.Source.Rate)
	fmt.Fprintf(&b, "Render: %s", c.Render.Variant)
	if c.Render.Format != "" {
		fmt.Fprintf(&b, " (%s)", c.Render.Format)
	}
	fmt.Fprintf(&b, ", %d staging buffers\n", c.Render.StagingBuffers)
	fmt.Fprintf(&b, "Window: %q %dx%d\n", c.Window.Title, c.Window.Width, c.Window.Height)
	if c.Api != nil {
		fmt.Fprintf(&b, "API: %s\n", c.Api.Bind)
	}
	return b.String()
}

type SourceCfg struct {
	Type    string
	Path    CfgPath
	Rate    int
	Inotify bool
	Loop    bool
}

func (s *SourceCfg) Validate() error {
	switch s.Type {
	case "file":
		if s.Path == "" {
			return fmt.Errorf("file source needs a path")
		}
	case "stdin":
		if s.Inotify {
			return fmt.Errorf("cannot enable inotify for stdin")
		}
		if s.Loop {
			return fmt.Errorf("cannot loop stdin")
		}
	default:
		return fmt.Errorf("unknown source type: %s", s.Type)
	}
	if s.Rate < 0 {
		return fmt.Errorf("rate must be nonnegative")
	}
	return nil
}

type RenderCfg struct {
	Variant          string
	Format           string
	StagingBuffers   int     `yaml:"staging_buffers"`
	FenceTimeoutMs   int     `yaml:"fence_timeout_ms"`
	StartupTimeoutMs int     `yaml:"startup_timeout_ms"`
	ClearColour      string  `yaml:"clear_colour"`
	ValidateShaders  bool    `yaml:"validate_shaders"`
	ShaderDumpDir    CfgPath `yaml:"shader_dump_dir"`
}

func (r *RenderCfg) ShaderVariant() shaders.Variant {
	v, err := shaders.ParseVariant(r.Variant)
	if err != nil {
		panic(err)
	}
	return v
}

// Policy is the configured texture format policy, or the zero policy when
// the variant default should be used.
func (r *RenderCfg) Policy() rendering.FormatPolicy {
	if r.Format == "" {
		return rendering.FormatPolicy{}
	}
	p, err := rendering.PolicyByName(r.Format)
	if err != nil {
		panic(err)
	}
	return p
}

func (r *RenderCfg) Validate() error {
	variant, err := shaders.ParseVariant(r.Variant)
	if err != nil {
		return err
	}
	if r.Format != "" {
		p, err := rendering.PolicyByName(r.Format)
		if err != nil {
			return fmt.Errorf("%w (known: %s)", err, strings.Join(rendering.PolicyNames(), ", "))
		}
		plane := encdec.Plane{BytesPerPixel: variant.Spec().Layout.BytesPerPixel}
		err = p.Check(plane)
		if err != nil {
			return fmt.Errorf("format %s cannot be used with %s: %w", p.Name, variant, err)
		}
	}
	if r.StagingBuffers < 1 || r.StagingBuffers > rendering.MaxStagingDepth {
		return fmt.Errorf("staging_buffers must be between 1 and %d", rendering.MaxStagingDepth)
	}
	if r.FenceTimeoutMs < 0 || r.StartupTimeoutMs < 0 {
		return fmt.Errorf("timeouts must be nonnegative")
	}
	if !utils.ColourValidate(r.ClearColour) {
		return fmt.Errorf("%s is not a valid RGBA hex colour", r.ClearColour)
	}
	return nil
}

type WindowCfg struct {
	Title     string
	Width     int
	Height    int
	Resizable bool
	VSync     bool `yaml:"vsync"`
	// SingleBuffered skips asking for a double-buffered surface
	SingleBuffered bool `yaml:"single_buffered"`
}

func (w *WindowCfg) Validate() error {
	if w.Width < 1 || w.Height < 1 {
		return fmt.Errorf("window size must be positive, got %dx%d", w.Width, w.Height)
	}
	return nil
}

type ApiCfg struct {
	Bind           string
	EnableProfiler bool `yaml:"enable_profiler"`
}

func (a *ApiCfg) Validate() error {
	if a.Bind == "" {
		return fmt.Errorf("bind address must be specified")
	}
	return nil
}

type LogCfg struct {
	Level string
}

func (l *LogCfg) SlogLevel() slog.Level {
	var level slog.Level
	err := level.UnmarshalText([]byte(l.Level))
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func (l *LogCfg) Validate() error {
	var level slog.Level
	err := level.UnmarshalText([]byte(l.Level))
	if err != nil {
		return fmt.Errorf("unknown log level %q", l.Level)
	}
	return nil
}
