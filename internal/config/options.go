package config

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"extcode/internal/core"
)

type Kind int

const (
	KindAny Kind = iota
	KindString
	KindStrings
	KindStringMap
	KindFloat
	KindInt
	KindInts
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindStrings:
		return "list of strings"
	case KindStringMap:
		return "string map"
	case KindFloat:
		return "number"
	case KindInt:
		return "integer"
	case KindInts:
		return "list of integers"
	case KindBool:
		return "bool"
	default:
		return "any"
	}
}

// Option describes one declared option.
type Option struct {
	Name    string
	Default any
	Kind    Kind
	Desc    string
	// Check runs after coercion and may reject the value.
	Check func(any) error
}

// Declarer adds options to a registry. Base declarations run first, then
// each derived declarer in order.
type Declarer func(o *Options) error

// Options is a key to descriptor registry together with the current values.
type Options struct {
	decls  map[string]Option
	order  []string
	values map[string]any
}

const (
	OptCommand             = "command"
	OptEnvVars             = "env_vars"
	OptTimeout             = "timeout"
	OptPollDelay           = "poll_delay"
	OptAllowedReturnCodes  = "allowed_return_codes"
	OptFailHard            = "fail_hard"
	OptExternalInputFiles  = "external_input_files"
	OptExternalOutputFiles = "external_output_files"
)

const DefaultPollDelay = 0.1

// NewOptions assembles the base options followed by every derived declaration.
func NewOptions(derived ...Declarer) (*Options, error) {
	o := &Options{
		decls:  map[string]Option{},
		values: map[string]any{},
	}
	if err := DeclareBase(o); err != nil {
		return nil, err
	}
	for _, declare := range derived {
		if declare == nil {
			continue
		}
		if err := declare(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func DeclareBase(o *Options) error {
	base := []Option{
		{Name: OptCommand, Default: []string{}, Kind: KindStrings, Desc: "command to be executed"},
		{Name: OptEnvVars, Default: map[string]string{}, Kind: KindStringMap, Desc: "environment variables overlaid on the inherited environment"},
		{Name: OptTimeout, Default: 0.0, Kind: KindFloat, Desc: "maximum time in seconds to wait for the command, 0 for no limit", Check: nonNegative},
		{Name: OptPollDelay, Default: DefaultPollDelay, Kind: KindFloat, Desc: "delay in seconds between completion checks, 0 for adaptive", Check: nonNegative},
		{Name: OptAllowedReturnCodes, Default: []int{0}, Kind: KindInts, Desc: "exit codes treated as success"},
		{Name: OptFailHard, Default: true, Kind: KindBool, Desc: "treat a disallowed exit code as fatal instead of recoverable"},
		{Name: OptExternalInputFiles, Default: []string{}, Kind: KindStrings, Desc: "files that must exist before the command runs"},
		{Name: OptExternalOutputFiles, Default: []string{}, Kind: KindStrings, Desc: "files that must exist after the command succeeds"},
	}
	for _, opt := range base {
		if err := o.Declare(opt); err != nil {
			return err
		}
	}
	return nil
}

// Declare registers a new option. Keys are unique across the whole chain.
func (o *Options) Declare(opt Option) error {
	if opt.Name == "" {
		return &core.ConfigurationError{Reason: "option name required"}
	}
	if _, ok := o.decls[opt.Name]; ok {
		return &core.ConfigurationError{Reason: fmt.Sprintf("Option '%s' has already been declared", opt.Name)}
	}
	if opt.Default != nil {
		value, err := coerce(opt.Kind, opt.Default)
		if err != nil {
			return &core.ConfigurationError{Reason: fmt.Sprintf("Option '%s' default: %v", opt.Name, err)}
		}
		opt.Default = value
	}
	o.decls[opt.Name] = opt
	o.order = append(o.order, opt.Name)
	o.values[opt.Name] = clone(opt.Default)
	return nil
}

func (o *Options) Set(name string, value any) error {
	opt, ok := o.decls[name]
	if !ok {
		return &core.ConfigurationError{Reason: fmt.Sprintf("Option '%s' cannot be set because it has not been declared", name)}
	}
	coerced, err := coerce(opt.Kind, value)
	if err != nil {
		return &core.ConfigurationError{Reason: fmt.Sprintf("Option '%s': %v", name, err)}
	}
	if opt.Check != nil {
		if err := opt.Check(coerced); err != nil {
			return &core.ConfigurationError{Reason: fmt.Sprintf("Option '%s': %v", name, err)}
		}
	}
	o.values[name] = coerced
	return nil
}

// Apply sets every value in values, stopping at the first rejected key.
// Keys are applied in sorted order so errors are deterministic.
func (o *Options) Apply(values map[string]any) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := o.Set(key, values[key]); err != nil {
			return err
		}
	}
	return nil
}

func (o *Options) Get(name string) (any, error) {
	if _, ok := o.decls[name]; !ok {
		return nil, &core.ConfigurationError{Reason: fmt.Sprintf("Option '%s' has not been declared", name)}
	}
	return clone(o.values[name]), nil
}

func (o *Options) Has(name string) bool {
	_, ok := o.decls[name]
	return ok
}

// Keys returns declared option names in declaration order.
func (o *Options) Keys() []string {
	return append([]string(nil), o.order...)
}

func (o *Options) Describe(name string) (Option, bool) {
	opt, ok := o.decls[name]
	return opt, ok
}

func (o *Options) Strings(name string) []string {
	v, _ := o.values[name].([]string)
	return append([]string(nil), v...)
}

func (o *Options) StringMap(name string) map[string]string {
	v, _ := o.values[name].(map[string]string)
	out := make(map[string]string, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

func (o *Options) String(name string) string {
	v, _ := o.values[name].(string)
	return v
}

func (o *Options) Float(name string) float64 {
	v, _ := o.values[name].(float64)
	return v
}

func (o *Options) Int(name string) int {
	v, _ := o.values[name].(int)
	return v
}

func (o *Options) Ints(name string) []int {
	v, _ := o.values[name].([]int)
	return append([]int(nil), v...)
}

func (o *Options) Bool(name string) bool {
	v, _ := o.values[name].(bool)
	return v
}

// Spec snapshots the current values into an InvocationSpec.
func (o *Options) Spec(dir string, stdout, stderr core.StreamTarget) core.InvocationSpec {
	return core.InvocationSpec{
		Command:            o.Strings(OptCommand),
		Env:                o.StringMap(OptEnvVars),
		Dir:                dir,
		Stdout:             stdout,
		Stderr:             stderr,
		Timeout:            Seconds(o.Float(OptTimeout)),
		TimeoutSeconds:     o.Float(OptTimeout),
		PollDelay:          Seconds(o.Float(OptPollDelay)),
		AllowedReturnCodes: o.Ints(OptAllowedReturnCodes),
		FailHard:           o.Bool(OptFailHard),
		Manifest: core.FileManifest{
			Inputs:  o.Strings(OptExternalInputFiles),
			Outputs: o.Strings(OptExternalOutputFiles),
		},
	}
}

// Seconds converts s to a Duration, saturating at the largest Duration for
// values (including +Inf) that do not fit.
func Seconds(s float64) time.Duration {
	d := s * float64(time.Second)
	if d >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

func nonNegative(v any) error {
	f, _ := v.(float64)
	if f < 0 || math.IsNaN(f) {
		return fmt.Errorf("must be >= 0, got %v", v)
	}
	return nil
}

func coerce(kind Kind, value any) (any, error) {
	switch kind {
	case KindAny:
		return value, nil
	case KindString:
		if s, ok := value.(string); ok {
			return s, nil
		}
	case KindStrings:
		switch v := value.(type) {
		case nil:
			return []string{}, nil
		case []string:
			return append([]string{}, v...), nil
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("expected %s, got element %v (%T)", kind, item, item)
				}
				out = append(out, s)
			}
			return out, nil
		}
	case KindStringMap:
		switch v := value.(type) {
		case nil:
			return map[string]string{}, nil
		case map[string]string:
			out := make(map[string]string, len(v))
			for k, val := range v {
				out[k] = val
			}
			return out, nil
		case map[string]any:
			out := make(map[string]string, len(v))
			for k, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("expected %s, got %s=%v (%T)", kind, k, item, item)
				}
				out[k] = s
			}
			return out, nil
		}
	case KindFloat:
		if f, ok := toFloat(value); ok {
			return f, nil
		}
	case KindInt:
		if n, ok := toInt(value); ok {
			return n, nil
		}
	case KindInts:
		switch v := value.(type) {
		case []int:
			return append([]int{}, v...), nil
		case []any:
			out := make([]int, 0, len(v))
			for _, item := range v {
				n, ok := toInt(item)
				if !ok {
					return nil, fmt.Errorf("expected %s, got element %v (%T)", kind, item, item)
				}
				out = append(out, n)
			}
			return out, nil
		case []float64:
			out := make([]int, 0, len(v))
			for _, item := range v {
				n, ok := toInt(item)
				if !ok {
					return nil, fmt.Errorf("expected %s, got element %v", kind, item)
				}
				out = append(out, n)
			}
			return out, nil
		case map[int]struct{}:
			out := make([]int, 0, len(v))
			for n := range v {
				out = append(out, n)
			}
			sort.Ints(out)
			return out, nil
		}
	case KindBool:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("expected %s, got %v (%T)", kind, value, value)
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case int32:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

func clone(value any) any {
	switch v := value.(type) {
	case []string:
		return append([]string{}, v...)
	case []int:
		return append([]int{}, v...)
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, val := range v {
			out[k] = val
		}
		return out
	default:
		return v
	}
}
