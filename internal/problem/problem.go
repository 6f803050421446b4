// Package problem reads flux exercises from TOML and checks estimates
// against their closed-form answers.
package problem

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cast"

	"github.com/njchilds90/goflux"
	"github.com/njchilds90/goflux/symbolic"
)

// DefaultTolerance is the relative error a problem may miss by when its
// file gives none.
const DefaultTolerance = 0.01

// Spec is one exercise as written in a problem file. Bounds and the
// expected value may be numbers or expression strings.
type Spec struct {
	Name      string        `toml:"name" json:"name"`
	Field     []string      `toml:"field" json:"field"`
	Surface   []string      `toml:"surface" json:"surface"`
	U         []interface{} `toml:"u" json:"u"`
	V         []interface{} `toml:"v" json:"v"`
	Dx        float64       `toml:"dx" json:"dx"`
	Expected  interface{}   `toml:"expected" json:"expected"`
	Tolerance float64       `toml:"tolerance" json:"tolerance,omitempty"`
}

type file struct {
	Problems []Spec `toml:"problem"`
}

// Decode reads a problem file. Unknown keys are an error so that typos do
// not silently drop settings.
func Decode(r io.Reader) ([]Spec, error) {
	var f file
	md, err := toml.NewDecoder(r).Decode(&f)
	if err != nil {
		return nil, fmt.Errorf("problem: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("problem: unknown keys %s", strings.Join(keys, ", "))
	}
	for i, s := range f.Problems {
		if s.Name == "" {
			return nil, fmt.Errorf("problem: entry %d has no name", i)
		}
	}
	return f.Problems, nil
}

// Load reads the problem file at path.
func Load(path string) ([]Spec, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("problem: %w", err)
	}
	defer fh.Close()
	specs, err := Decode(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return specs, nil
}

//go:embed sets/textbook.toml
var textbook []byte

// Textbook returns the built-in exercise set.
func Textbook() []Spec {
	specs, err := Decode(bytes.NewReader(textbook))
	if err != nil {
		panic(err)
	}
	return specs
}

// Problem converts s for evaluation.
func (s Spec) Problem() (goflux.Problem, error) {
	field, err := symbolic.ParseVector(s.Field...)
	if err != nil {
		return goflux.Problem{}, fmt.Errorf("problem %s: field: %w", s.Name, err)
	}
	surface, err := symbolic.ParseVector(s.Surface...)
	if err != nil {
		return goflux.Problem{}, fmt.Errorf("problem %s: surface: %w", s.Name, err)
	}
	u, err := parseRange(s.U)
	if err != nil {
		return goflux.Problem{}, fmt.Errorf("problem %s: u: %w", s.Name, err)
	}
	v, err := parseRange(s.V)
	if err != nil {
		return goflux.Problem{}, fmt.Errorf("problem %s: v: %w", s.Name, err)
	}
	return goflux.Problem{Field: field, Surface: surface, U: u, V: v, Step: s.Dx}, nil
}

func parseRange(bounds []interface{}) (goflux.Range, error) {
	if len(bounds) != 2 {
		return goflux.Range{}, fmt.Errorf("want 2 bounds, got %d", len(bounds))
	}
	var out [2]goflux.Bound
	for i, raw := range bounds {
		text, err := cast.ToStringE(raw)
		if err != nil {
			return goflux.Range{}, err
		}
		if out[i], err = goflux.ParseBound(text); err != nil {
			return goflux.Range{}, err
		}
	}
	return goflux.Range{Lower: out[0], Upper: out[1]}, nil
}

// ExpectedValue evaluates the closed-form answer.
func (s Spec) ExpectedValue() (float64, error) {
	text, err := cast.ToStringE(s.Expected)
	if err != nil {
		return 0, fmt.Errorf("problem %s: expected: %w", s.Name, err)
	}
	e, err := symbolic.Parse(text)
	if err != nil {
		return 0, fmt.Errorf("problem %s: expected: %w", s.Name, err)
	}
	p, err := symbolic.Compile(e)
	if err != nil {
		return 0, fmt.Errorf("problem %s: expected: %w", s.Name, err)
	}
	return p(nil), nil
}

func (s Spec) tolerance() float64 {
	if s.Tolerance > 0 {
		return s.Tolerance
	}
	return DefaultTolerance
}

// Outcome is the result of checking one Spec.
type Outcome struct {
	Name     string
	Flux     float64
	Expected float64
	// RelErr is relative to Expected, or absolute when Expected is 0.
	RelErr float64
	Pass   bool
	Err    error
}

// Check evaluates every spec in order. A spec that fails to parse or
// evaluate gets an Outcome with Err set; the rest still run.
func Check(ctx context.Context, ev *goflux.Evaluator, specs []Spec) []Outcome {
	out := make([]Outcome, len(specs))
	for i, s := range specs {
		out[i] = checkOne(ctx, ev, s)
	}
	return out
}

func checkOne(ctx context.Context, ev *goflux.Evaluator, s Spec) Outcome {
	o := Outcome{Name: s.Name}
	want, err := s.ExpectedValue()
	if err != nil {
		o.Err = err
		return o
	}
	o.Expected = want
	p, err := s.Problem()
	if err != nil {
		o.Err = err
		return o
	}
	est, err := ev.Estimate(ctx, p)
	if err != nil {
		o.Err = fmt.Errorf("problem %s: %w", s.Name, err)
		return o
	}
	o.Flux = est.Flux
	o.RelErr = math.Abs(est.Flux - want)
	if want != 0 {
		o.RelErr /= math.Abs(want)
	}
	o.Pass = o.RelErr <= s.tolerance()
	return o
}

// Failed counts outcomes that errored or missed their tolerance.
func Failed(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if !o.Pass {
			n++
		}
	}
	return n
}
