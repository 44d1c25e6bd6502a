package evaluation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rolecraft/turneval/internal/model"
)

// Verbosity controls how much detail an evaluation carries beyond the
// fixed report fields.
type Verbosity string

const (
	// VerbosityMinimal suppresses per-analyzer debug logging.
	VerbosityMinimal Verbosity = "minimal"
	// VerbosityStandard is the default.
	VerbosityStandard Verbosity = "standard"
	// VerbosityDetailed adds a score breakdown to every report.
	VerbosityDetailed Verbosity = "detailed"
)

// Checks records which dimensions run. A disabled dimension produces an
// empty analysis with neutral scores.
type Checks struct {
	Behavior bool `json:"behavior" yaml:"behavior"`
	Context  bool `json:"context" yaml:"context"`
	State    bool `json:"state" yaml:"state"`
	Prompt   bool `json:"prompt" yaml:"prompt"`
}

// Enabled reports whether the given dimension runs.
func (c Checks) Enabled(d model.Dimension) bool {
	switch d {
	case model.DimensionBehavior:
		return c.Behavior
	case model.DimensionContext:
		return c.Context
	case model.DimensionState:
		return c.State
	case model.DimensionPrompt:
		return c.Prompt
	default:
		return false
	}
}

func (c *Checks) set(d model.Dimension, on bool) error {
	switch d {
	case model.DimensionBehavior:
		c.Behavior = on
	case model.DimensionContext:
		c.Context = on
	case model.DimensionState:
		c.State = on
	case model.DimensionPrompt:
		c.Prompt = on
	default:
		return fmt.Errorf("unknown check %q", d)
	}
	return nil
}

// Thresholds are the numeric limits the analyzers compare against.
type Thresholds struct {
	// MaxContextTokens is the summed prompt token estimate above which the
	// context counts as overloaded.
	MaxContextTokens int `json:"max_context_tokens" yaml:"max_context_tokens"`
	// MaxHistoryMessages is the number of conversational prompt messages
	// above which history is flagged as redundant.
	MaxHistoryMessages int `json:"max_history_messages" yaml:"max_history_messages"`
	// RepetitionRatio is the unique/total sentence ratio below which a
	// response is repetitive.
	RepetitionRatio float64 `json:"repetition_ratio" yaml:"repetition_ratio"`
	// MinRepetitionSentences is the sentence count a response must exceed
	// before repetition is checked.
	MinRepetitionSentences int `json:"min_repetition_sentences" yaml:"min_repetition_sentences"`
	// MinResponseLength is the content length below which a response is incomplete.
	MinResponseLength int `json:"min_response_length" yaml:"min_response_length"`
	// ContradictionWindow is how many trailing history turns are searched
	// for contradicting statements.
	ContradictionWindow int `json:"contradiction_window" yaml:"contradiction_window"`
	// ExcessiveUpdateFactor is the multiple of the previous value a numeric
	// update must exceed to be flagged.
	ExcessiveUpdateFactor float64 `json:"excessive_update_factor" yaml:"excessive_update_factor"`
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxContextTokens:       6000,
		MaxHistoryMessages:     20,
		RepetitionRatio:        0.7,
		MinRepetitionSentences: 3,
		MinResponseLength:      20,
		ContradictionWindow:    5,
		ExcessiveUpdateFactor:  2,
	}
}

func (t Thresholds) validate() error {
	var errs []error
	if t.MaxContextTokens <= 0 {
		errs = append(errs, errors.New("max_context_tokens must be positive"))
	}
	if t.MaxHistoryMessages <= 0 {
		errs = append(errs, errors.New("max_history_messages must be positive"))
	}
	if t.RepetitionRatio <= 0 || t.RepetitionRatio > 1 {
		errs = append(errs, errors.New("repetition_ratio must be in (0, 1]"))
	}
	if t.MinRepetitionSentences < 0 {
		errs = append(errs, errors.New("min_repetition_sentences must not be negative"))
	}
	if t.MinResponseLength < 0 {
		errs = append(errs, errors.New("min_response_length must not be negative"))
	}
	if t.ContradictionWindow <= 0 {
		errs = append(errs, errors.New("contradiction_window must be positive"))
	}
	if t.ExcessiveUpdateFactor <= 0 {
		errs = append(errs, errors.New("excessive_update_factor must be positive"))
	}
	return errors.Join(errs...)
}

// Config is the immutable configuration of an Evaluator.
type Config struct {
	Checks     Checks     `json:"enabled_checks" yaml:"enabled_checks"`
	Thresholds Thresholds `json:"thresholds" yaml:"thresholds"`
	Verbosity  Verbosity  `json:"verbosity" yaml:"verbosity"`
}

// DefaultConfig returns a configuration with every check enabled, stock
// thresholds and standard verbosity.
func DefaultConfig() Config {
	return Config{
		Checks:     Checks{Behavior: true, Context: true, State: true, Prompt: true},
		Thresholds: DefaultThresholds(),
		Verbosity:  VerbosityStandard,
	}
}

// Validate checks the configuration for out-of-range values.
func (c Config) Validate() error {
	var errs []error
	switch c.Verbosity {
	case VerbosityMinimal, VerbosityStandard, VerbosityDetailed:
	default:
		errs = append(errs, fmt.Errorf("unknown verbosity %q", c.Verbosity))
	}
	if err := c.Thresholds.validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("evaluation: invalid config: %w", err)
	}
	return nil
}

// ConfigBuilder assembles a Config starting from DefaultConfig. Each setter
// replaces a whole section; nothing is merged field by field.
type ConfigBuilder struct {
	cfg  Config
	errs []error
}

// NewConfigBuilder returns a builder seeded with DefaultConfig.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{cfg: DefaultConfig()}
}

// Enable turns the given dimensions on.
func (b *ConfigBuilder) Enable(dims ...model.Dimension) *ConfigBuilder {
	for _, d := range dims {
		if err := b.cfg.Checks.set(d, true); err != nil {
			b.errs = append(b.errs, err)
		}
	}
	return b
}

// Disable turns the given dimensions off.
func (b *ConfigBuilder) Disable(dims ...model.Dimension) *ConfigBuilder {
	for _, d := range dims {
		if err := b.cfg.Checks.set(d, false); err != nil {
			b.errs = append(b.errs, err)
		}
	}
	return b
}

// WithChecks replaces the enabled set.
func (b *ConfigBuilder) WithChecks(c Checks) *ConfigBuilder {
	b.cfg.Checks = c
	return b
}

// WithThresholds replaces every threshold.
func (b *ConfigBuilder) WithThresholds(t Thresholds) *ConfigBuilder {
	b.cfg.Thresholds = t
	return b
}

// WithVerbosity sets the verbosity.
func (b *ConfigBuilder) WithVerbosity(v Verbosity) *ConfigBuilder {
	b.cfg.Verbosity = v
	return b
}

// Build validates and returns the configuration.
func (b *ConfigBuilder) Build() (Config, error) {
	if len(b.errs) > 0 {
		return Config{}, fmt.Errorf("evaluation: invalid config: %w", errors.Join(b.errs...))
	}
	if err := b.cfg.Validate(); err != nil {
		return Config{}, err
	}
	return b.cfg, nil
}

// profile is the on-disk YAML shape. Sections are pointers so an absent
// section keeps its default while a present one replaces it whole.
type profile struct {
	EnabledChecks *Checks            `yaml:"enabled_checks"`
	Thresholds    *profileThresholds `yaml:"thresholds"`
	Verbosity     *Verbosity         `yaml:"verbosity"`
}

type profileThresholds struct {
	MaxContextTokens       *int     `yaml:"max_context_tokens"`
	MaxHistoryMessages     *int     `yaml:"max_history_messages"`
	RepetitionRatio        *float64 `yaml:"repetition_ratio"`
	MinRepetitionSentences *int     `yaml:"min_repetition_sentences"`
	MinResponseLength      *int     `yaml:"min_response_length"`
	ContradictionWindow    *int     `yaml:"contradiction_window"`
	ExcessiveUpdateFactor  *float64 `yaml:"excessive_update_factor"`
}

func (p profileThresholds) complete() (Thresholds, error) {
	var missing []string
	check := func(name string, set bool) {
		if !set {
			missing = append(missing, name)
		}
	}
	check("max_context_tokens", p.MaxContextTokens != nil)
	check("max_history_messages", p.MaxHistoryMessages != nil)
	check("repetition_ratio", p.RepetitionRatio != nil)
	check("min_repetition_sentences", p.MinRepetitionSentences != nil)
	check("min_response_length", p.MinResponseLength != nil)
	check("contradiction_window", p.ContradictionWindow != nil)
	check("excessive_update_factor", p.ExcessiveUpdateFactor != nil)
	if len(missing) > 0 {
		return Thresholds{}, fmt.Errorf("thresholds block is missing %v", missing)
	}
	return Thresholds{
		MaxContextTokens:       *p.MaxContextTokens,
		MaxHistoryMessages:     *p.MaxHistoryMessages,
		RepetitionRatio:        *p.RepetitionRatio,
		MinRepetitionSentences: *p.MinRepetitionSentences,
		MinResponseLength:      *p.MinResponseLength,
		ContradictionWindow:    *p.ContradictionWindow,
		ExcessiveUpdateFactor:  *p.ExcessiveUpdateFactor,
	}, nil
}

// ParseProfile decodes a YAML evaluation profile. Unknown keys are rejected
// and a thresholds block, when present, must set every threshold.
func ParseProfile(data []byte) (Config, error) {
	var p profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("evaluation: decode profile: %w", err)
	}

	b := NewConfigBuilder()
	if p.EnabledChecks != nil {
		b.WithChecks(*p.EnabledChecks)
	}
	if p.Thresholds != nil {
		t, err := p.Thresholds.complete()
		if err != nil {
			return Config{}, fmt.Errorf("evaluation: profile: %w", err)
		}
		b.WithThresholds(t)
	}
	if p.Verbosity != nil {
		b.WithVerbosity(*p.Verbosity)
	}
	return b.Build()
}

// LoadProfile reads and parses a YAML evaluation profile from disk.
func LoadProfile(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return Config{}, fmt.Errorf("evaluation: read profile: %w", err)
	}
	return ParseProfile(data)
}

// MarshalProfile renders a Config as a YAML profile that ParseProfile accepts.
func MarshalProfile(c Config) ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("evaluation: encode profile: %w", err)
	}
	return out, nil
}
