package cli

import (
	"fmt"
	"slices"
	"strconv"
	"time"
)

// Profile is the pipeline configuration stored in a context. Zero fields
// take the defaults from WithDefaults; command-line flags override both.
type Profile struct {
	// Backend is "kernel" (ncnn) or "graph" (ONNX Runtime).
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty"`

	// Model is a model location URI. Empty selects crepe-<capacity> in the
	// model directory.
	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// Capacity is tiny, small, medium, large or full.
	Capacity string `yaml:"capacity,omitempty" json:"capacity,omitempty"`

	// Device is "preferred" or "fallback".
	Device string `yaml:"device,omitempty" json:"device,omitempty"`

	// Providers lists graph execution providers, preferred first.
	Providers []string `yaml:"providers,omitempty" json:"providers,omitempty"`

	Threads int  `yaml:"threads,omitempty" json:"threads,omitempty"`
	Warmup  bool `yaml:"warmup,omitempty" json:"warmup,omitempty"`

	// Engine is the resampler engine: soxr or polyphase.
	Engine string `yaml:"engine,omitempty" json:"engine,omitempty"`

	SinkCapacity int `yaml:"sink_capacity,omitempty" json:"sinkCapacity,omitempty"`

	// Throttle is the minimum interval between points, e.g. "20ms".
	Throttle string `yaml:"throttle,omitempty" json:"throttle,omitempty"`

	// InputDevice is a capture device index; negative selects the default.
	InputDevice *int `yaml:"input_device,omitempty" json:"inputDevice,omitempty"`

	// StoreDir holds the session recorder and model cache. Empty uses the
	// data directory.
	StoreDir string `yaml:"store_dir,omitempty" json:"storeDir,omitempty"`

	// Listen is the point server address.
	Listen string `yaml:"listen,omitempty" json:"listen,omitempty"`

	// AllowedOrigins for the point server. Empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins,omitempty" json:"allowedOrigins,omitempty"`

	S3 S3Profile `yaml:"s3,omitempty" json:"s3,omitzero"`
}

// S3Profile configures s3:// model locations.
type S3Profile struct {
	Region    string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	PathStyle bool   `yaml:"path_style,omitempty" json:"pathStyle,omitempty"`
	AccessKey string `yaml:"access_key,omitempty" json:"accessKey,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty" json:"secretKey,omitempty"`
}

// Profile defaults.
const (
	DefaultBackend  = "kernel"
	DefaultCapacity = "tiny"
	DefaultDevice   = "preferred"
	DefaultEngine   = "soxr"
	DefaultListen   = "127.0.0.1:8080"
)

// WithDefaults returns a copy with empty fields set to their defaults.
func (p Profile) WithDefaults() Profile {
	if p.Backend == "" {
		p.Backend = DefaultBackend
	}
	if p.Capacity == "" {
		p.Capacity = DefaultCapacity
	}
	if p.Device == "" {
		p.Device = DefaultDevice
	}
	if p.Engine == "" {
		p.Engine = DefaultEngine
	}
	if p.SinkCapacity <= 0 {
		p.SinkCapacity = 100
	}
	if p.Listen == "" {
		p.Listen = DefaultListen
	}
	if p.InputDevice == nil {
		def := -1
		p.InputDevice = &def
	}
	return p
}

// ThrottleDuration parses Throttle. Empty means no throttle.
func (p Profile) ThrottleDuration() (time.Duration, error) {
	if p.Throttle == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(p.Throttle)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("cli: invalid throttle %q", p.Throttle)
	}
	return d, nil
}

// Masked returns a copy safe to display.
func (p Profile) Masked() Profile {
	p.S3.AccessKey = MaskSecret(p.S3.AccessKey)
	p.S3.SecretKey = MaskSecret(p.S3.SecretKey)
	return p
}

type profileField struct {
	get func(*Profile) string
	set func(*Profile, string) error
}

func stringField(f func(*Profile) *string, allowed ...string) profileField {
	return profileField{
		get: func(p *Profile) string { return *f(p) },
		set: func(p *Profile, v string) error {
			if len(allowed) > 0 && v != "" && !slices.Contains(allowed, v) {
				return fmt.Errorf("must be one of %v", allowed)
			}
			*f(p) = v
			return nil
		},
	}
}

func intField(f func(*Profile) *int) profileField {
	return profileField{
		get: func(p *Profile) string { return strconv.Itoa(*f(p)) },
		set: func(p *Profile, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*f(p) = n
			return nil
		},
	}
}

func boolField(f func(*Profile) *bool) profileField {
	return profileField{
		get: func(p *Profile) string { return strconv.FormatBool(*f(p)) },
		set: func(p *Profile, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			*f(p) = b
			return nil
		},
	}
}

var profileFields = map[string]profileField{
	"backend":       stringField(func(p *Profile) *string { return &p.Backend }, "kernel", "graph"),
	"model":         stringField(func(p *Profile) *string { return &p.Model }),
	"capacity":      stringField(func(p *Profile) *string { return &p.Capacity }, "tiny", "small", "medium", "large", "full"),
	"device":        stringField(func(p *Profile) *string { return &p.Device }, "preferred", "fallback"),
	"engine":        stringField(func(p *Profile) *string { return &p.Engine }, "soxr", "polyphase"),
	"throttle":      stringField(func(p *Profile) *string { return &p.Throttle }),
	"store_dir":     stringField(func(p *Profile) *string { return &p.StoreDir }),
	"listen":        stringField(func(p *Profile) *string { return &p.Listen }),
	"s3.region":     stringField(func(p *Profile) *string { return &p.S3.Region }),
	"s3.endpoint":   stringField(func(p *Profile) *string { return &p.S3.Endpoint }),
	"s3.access_key": stringField(func(p *Profile) *string { return &p.S3.AccessKey }),
	"s3.secret_key": stringField(func(p *Profile) *string { return &p.S3.SecretKey }),
	"threads":       intField(func(p *Profile) *int { return &p.Threads }),
	"sink_capacity": intField(func(p *Profile) *int { return &p.SinkCapacity }),
	"warmup":        boolField(func(p *Profile) *bool { return &p.Warmup }),
	"s3.path_style": boolField(func(p *Profile) *bool { return &p.S3.PathStyle }),
	"input_device": {
		get: func(p *Profile) string {
			if p.InputDevice == nil {
				return ""
			}
			return strconv.Itoa(*p.InputDevice)
		},
		set: func(p *Profile, v string) error {
			if v == "" {
				p.InputDevice = nil
				return nil
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			p.InputDevice = &n
			return nil
		},
	},
}

// ProfileKeys returns the keys accepted by Set and Get, sorted.
func ProfileKeys() []string {
	keys := make([]string, 0, len(profileFields))
	for k := range profileFields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Set assigns one profile field by key, e.g. Set("capacity", "small").
func (p *Profile) Set(key, value string) error {
	f, ok := profileFields[key]
	if !ok {
		return fmt.Errorf("cli: unknown profile key %q", key)
	}
	if err := f.set(p, value); err != nil {
		return fmt.Errorf("cli: set %s=%q: %w", key, value, err)
	}
	return nil
}

// Get returns one profile field by key.
func (p *Profile) Get(key string) (string, error) {
	f, ok := profileFields[key]
	if !ok {
		return "", fmt.Errorf("cli: unknown profile key %q", key)
	}
	return f.get(p), nil
}
