package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/dudk/console"
	"github.com/dudk/console/panner"
	"github.com/dudk/console/port"
	"github.com/dudk/console/route"
	"github.com/dudk/console/signal"
	"github.com/dudk/console/track"
)

// ErrInvalidConfig is returned when config can't be applied.
var ErrInvalidConfig = errors.New("invalid session config")

// Config describes session in YAML.
type Config struct {
	SampleRate   int           `yaml:"sample-rate"`
	BufferSize   int           `yaml:"buffer-size"`
	Backend      string        `yaml:"backend"`
	SoloMuteGain float64       `yaml:"solo-mute-gain"`
	Declick      int           `yaml:"declick"`
	Record       bool          `yaml:"record"`
	CaptureDir   string        `yaml:"capture-dir"`
	Master       RouteConfig   `yaml:"master"`
	Groups       []GroupConfig `yaml:"groups"`
	Routes       []RouteConfig `yaml:"routes"`

	// dir is used to resolve relative paths.
	dir string
}

// RouteConfig describes a route or a track.
type RouteConfig struct {
	Name       string       `yaml:"name"`
	Track      bool         `yaml:"track"`
	Inputs     int          `yaml:"inputs"`
	Outputs    int          `yaml:"outputs"`
	PanLaw     string       `yaml:"pan-law"`
	Gain       float64      `yaml:"gain-db"`
	Mute       bool         `yaml:"mute"`
	Solo       bool         `yaml:"solo"`
	Group      string       `yaml:"group"`
	Playback   string       `yaml:"playback"`
	Monitoring string       `yaml:"monitoring"`
	Arm        bool         `yaml:"arm"`
	Input      string       `yaml:"input"`
	Connect    []string     `yaml:"connect"`
	Sends      []SendConfig `yaml:"sends"`
}

// SendConfig describes internal send.
type SendConfig struct {
	Target   string  `yaml:"target"`
	Gain     float64 `yaml:"gain-db"`
	PreFader bool    `yaml:"pre-fader"`
}

// GroupConfig describes route group.
type GroupConfig struct {
	Name     string   `yaml:"name"`
	Shares   []string `yaml:"shares"`
	Absolute bool     `yaml:"absolute"`
}

const (
	defaultSampleRate = 44100
	defaultBufferSize = 512
)

// ParseConfig decodes YAML config and sets defaults.
func ParseConfig(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if c.SampleRate == 0 {
		c.SampleRate = defaultSampleRate
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.Backend == "" {
		c.Backend = "dummy"
	}
	names := map[string]struct{}{MasterName: {}}
	for _, rc := range c.Routes {
		if rc.Name == "" {
			return nil, fmt.Errorf("%w: route without name", ErrInvalidConfig)
		}
		if _, ok := names[rc.Name]; ok {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, rc.Name, ErrDuplicateRoute)
		}
		names[rc.Name] = struct{}{}
	}
	return &c, nil
}

// LoadConfig reads config file. Relative paths of the config are resolved
// against its directory.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}
	c.dir = filepath.Dir(path)
	return c, nil
}

// NewContext creates engine context for the config.
func (c *Config) NewContext(options ...console.ContextOption) *console.Context {
	ctx := console.NewContext(c.SampleRate, c.BufferSize, options...)
	ctx.SetSoloMuteGain(float32(c.SoloMuteGain))
	if c.Declick > 0 {
		ctx.SetDeclickFrames(c.Declick)
	}
	ctx.SetRecordEnabled(c.Record)
	return ctx
}

func (c *Config) path(p string) string {
	if p == "" || filepath.IsAbs(p) || c.dir == "" {
		return p
	}
	return filepath.Join(c.dir, p)
}

// Build creates session from config. Physical ports must be registered
// before, so routes can connect to them.
func Build(ctx *console.Context, c *Config, options ...Option) (*Session, error) {
	master, err := c.Master.routeOptions()
	if err != nil {
		return nil, err
	}
	options = append([]Option{WithMaster(master...)}, options...)
	s, err := New(ctx, options...)
	if err != nil {
		return nil, err
	}
	if err := s.build(c); err != nil {
		return nil, errors.Join(err, s.Destroy())
	}
	return s, nil
}

func (s *Session) build(c *Config) error {
	for _, gc := range c.Groups {
		var props route.Property
		for _, name := range gc.Shares {
			p, ok := route.ParseProperty(name)
			if !ok {
				return fmt.Errorf("%w: group %s shares %q", ErrInvalidConfig, gc.Name, name)
			}
			props |= p
		}
		g, err := s.NewGroup(gc.Name, props)
		if err != nil {
			return err
		}
		g.SetRelative(!gc.Absolute)
	}

	for _, rc := range c.Routes {
		if err := s.buildRoute(c, rc); err != nil {
			return err
		}
	}
	for _, rc := range append([]RouteConfig{c.Master}, c.Routes...) {
		name := rc.Name
		if name == "" {
			name = MasterName
		}
		r, _ := s.RouteByName(name)
		if err := s.connect(r, rc.Connect); err != nil {
			return err
		}
		for _, sc := range rc.Sends {
			if err := s.addSend(r, sc); err != nil {
				return err
			}
		}
		if err := s.connectInput(r, rc.Input); err != nil {
			return err
		}
	}
	if err := s.Sort(); err != nil {
		return err
	}
	for _, rc := range c.Routes {
		if !rc.Arm {
			continue
		}
		r, _ := s.RouteByName(rc.Name)
		t, ok := s.Track(r.ID())
		if !ok {
			return fmt.Errorf("%w: %s is not a track", ErrInvalidConfig, rc.Name)
		}
		if err := t.Arm(); err != nil {
			return err
		}
	}
	return nil
}

func (rc RouteConfig) routeOptions() ([]route.Option, error) {
	var options []route.Option
	if rc.Inputs > 0 {
		options = append(options, route.WithInputs(signal.AudioChannels(rc.Inputs)))
	}
	if rc.Outputs > 0 {
		options = append(options, route.WithOutputs(signal.AudioChannels(rc.Outputs)))
	}
	if rc.PanLaw != "" {
		law, err := panner.ParseLaw(rc.PanLaw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, rc.Name, err)
		}
		options = append(options, route.WithPanner(law))
	}
	return options, nil
}

func (s *Session) buildRoute(c *Config, rc RouteConfig) error {
	options, err := rc.routeOptions()
	if err != nil {
		return err
	}
	var r *route.Route
	if rc.Track || rc.Playback != "" {
		trackOptions := []track.Option{}
		if c.CaptureDir != "" {
			trackOptions = append(trackOptions, track.WithCaptureDir(c.path(c.CaptureDir)))
		}
		t, err := s.AddTrack(rc.Name, options, trackOptions...)
		if err != nil {
			return err
		}
		if rc.Monitoring != "" {
			m, ok := track.ParseMonitoring(rc.Monitoring)
			if !ok {
				return fmt.Errorf("%w: %s monitoring %q", ErrInvalidConfig, rc.Name, rc.Monitoring)
			}
			t.SetMonitoring(m)
		}
		if rc.Playback != "" {
			if err := t.Load(c.path(rc.Playback)); err != nil {
				return err
			}
		}
		r = t.Route
	} else if r, err = s.AddRoute(rc.Name, options...); err != nil {
		return err
	}
	if rc.Group != "" {
		g, ok := s.Group(rc.Group)
		if !ok {
			return fmt.Errorf("%w: %s group %q not found", ErrInvalidConfig, rc.Name, rc.Group)
		}
		g.Add(r)
	}
	if rc.Gain != 0 {
		r.SetGain(float64(signal.DBToCoefficient(rc.Gain)))
	}
	r.SetMute(rc.Mute)
	if rc.Solo {
		s.SetSolo(r, true)
	}
	return nil
}

// connect connects outputs of the route to inputs of the route with
// target name or to physical inputs matching target prefix.
func (s *Session) connect(r *route.Route, targets []string) error {
	outputs := r.OutputPorts()
	for _, target := range targets {
		var inputs []string
		if dst, ok := s.RouteByName(target); ok {
			for _, p := range dst.InputPorts() {
				inputs = append(inputs, p.Name())
			}
		} else {
			inputs = s.ctx.Ports.Ports(target, port.Input, true)
		}
		if len(inputs) == 0 {
			return fmt.Errorf("%w: %s connects to %q: %w", ErrInvalidConfig, r.Name(), target, port.ErrNotFound)
		}
		for i, out := range outputs {
			if err := s.ctx.Ports.Connect(out.Name(), inputs[i%len(inputs)]); err != nil {
				return err
			}
		}
	}
	return nil
}

// connectInput connects physical outputs matching prefix to route inputs.
func (s *Session) connectInput(r *route.Route, prefix string) error {
	if prefix == "" {
		return nil
	}
	sources := s.ctx.Ports.Ports(prefix, port.Output, true)
	if len(sources) == 0 {
		return fmt.Errorf("%w: %s input %q: %w", ErrInvalidConfig, r.Name(), prefix, port.ErrNotFound)
	}
	for i, in := range r.InputPorts() {
		if err := s.ctx.Ports.Connect(sources[i%len(sources)], in.Name()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) addSend(r *route.Route, sc SendConfig) error {
	target, ok := s.RouteByName(sc.Target)
	if !ok {
		return fmt.Errorf("%w: %s sends to %q: %w", ErrInvalidConfig, r.Name(), sc.Target, ErrRouteNotFound)
	}
	send := r.NewInternalSend(target)
	send.Amp().SetGain(signal.DBToCoefficient(sc.Gain))
	pos := route.PostFader()
	if sc.PreFader {
		pos = route.PreFader()
	}
	return r.AddProcessor(send, pos)
}
