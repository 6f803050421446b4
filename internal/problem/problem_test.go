package problem

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njchilds90/goflux"
)

const planeTOML = `
[[problem]]
name = "plane"
field = ["2*x", "5*y", "0"]
surface = ["u", "v", "4*u + 3*v"]
u = [0, 1]
v = [-8, 8.0]
dx = 0.005
expected = -64
tolerance = 0.001
`

func TestDecode(t *testing.T) {
	specs, err := Decode(strings.NewReader(planeTOML))
	require.NoError(t, err)
	require.Len(t, specs, 1)
	s := specs[0]
	assert.Equal(t, "plane", s.Name)
	assert.Equal(t, []string{"2*x", "5*y", "0"}, s.Field)
	assert.Equal(t, 0.005, s.Dx)
	assert.Equal(t, 0.001, s.tolerance())

	want, err := s.ExpectedValue()
	require.NoError(t, err)
	assert.Equal(t, -64.0, want)

	p, err := s.Problem()
	require.NoError(t, err)
	assert.Equal(t, "[-8, 8)", p.V.String())
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	_, err := Decode(strings.NewReader(planeTOML + "stepsize = 3\n"))
	assert.ErrorContains(t, err, "stepsize")
}

func TestDecodeRequiresName(t *testing.T) {
	_, err := Decode(strings.NewReader("[[problem]]\nfield = [\"x\"]\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "set.toml")
	require.NoError(t, os.WriteFile(path, []byte(planeTOML), 0o600))
	specs, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, specs, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestTextbook(t *testing.T) {
	specs := Textbook()
	require.Len(t, specs, 8)
	for _, s := range specs {
		_, err := s.Problem()
		assert.NoErrorf(t, err, "%s", s.Name)
		want, err := s.ExpectedValue()
		assert.NoErrorf(t, err, "%s", s.Name)
		assert.Falsef(t, math.IsNaN(want), "%s", s.Name)
	}
	paraboloid := specs[3]
	assert.Equal(t, "paraboloid", paraboloid.Name)
	want, err := paraboloid.ExpectedValue()
	require.NoError(t, err)
	assert.InDelta(t, -128*math.Pi, want, 1e-12)
}

func TestSpecErrors(t *testing.T) {
	s := Spec{Name: "bad", Field: []string{"x"}, Surface: []string{"u"}, U: []interface{}{0}, V: []interface{}{0, 1}, Expected: 1}
	_, err := s.Problem()
	assert.ErrorContains(t, err, "want 2 bounds")

	s.U = []interface{}{0, "1 +"}
	_, err = s.Problem()
	assert.Error(t, err)

	s.Expected = "pi*w"
	_, err = s.ExpectedValue()
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	specs, err := Decode(strings.NewReader(planeTOML))
	require.NoError(t, err)
	wrong := specs[0]
	wrong.Name = "wrong answer"
	wrong.Expected = "64"
	broken := Spec{Name: "broken", Field: []string{"x +"}}

	outs := Check(context.Background(), &goflux.Evaluator{}, []Spec{specs[0], wrong, broken})
	require.Len(t, outs, 3)

	assert.True(t, outs[0].Pass)
	assert.NoError(t, outs[0].Err)
	assert.InDelta(t, -64, outs[0].Flux, 1e-6)

	assert.False(t, outs[1].Pass)
	assert.InDelta(t, 2, outs[1].RelErr, 1e-6)

	assert.False(t, outs[2].Pass)
	assert.Error(t, outs[2].Err)

	assert.Equal(t, 2, Failed(outs))
}

func TestCheckZeroExpectedUsesAbsoluteError(t *testing.T) {
	s := Spec{
		Name: "zero", Field: []string{"0", "0", "0"}, Surface: []string{"u", "v", "0"},
		U: []interface{}{0, 1}, V: []interface{}{0, 1}, Dx: 0.1, Expected: 0,
	}
	outs := Check(context.Background(), &goflux.Evaluator{}, []Spec{s})
	assert.True(t, outs[0].Pass)
	assert.Equal(t, 0.0, outs[0].RelErr)
}

func TestCheckCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	specs, err := Decode(strings.NewReader(planeTOML))
	require.NoError(t, err)
	outs := Check(ctx, &goflux.Evaluator{}, specs)
	assert.ErrorIs(t, outs[0].Err, context.Canceled)
}

func TestCheckTextbook(t *testing.T) {
	if testing.Short() {
		t.Skip("dense grids")
	}
	for _, o := range Check(context.Background(), &goflux.Evaluator{}, Textbook()) {
		assert.NoErrorf(t, o.Err, "%s", o.Name)
		assert.Truef(t, o.Pass, "%s: flux %v, expected %v, relative error %v", o.Name, o.Flux, o.Expected, o.RelErr)
	}
}
