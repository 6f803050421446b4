package symbolic

import (
	"fmt"
	"sort"
)

// ============================================================
// Compilation
// ============================================================

// Program is a compiled expression. args follow the parameter order given
// to Compile; passing fewer values panics.
type Program func(args []float64) float64

// Compile lowers e to a float64 closure over params. Every symbol left in e
// must be one of params, otherwise the error wraps ErrUnboundSymbol.
func Compile(e Expr, params ...string) (Program, error) {
	slots := make(map[string]int, len(params))
	for i, p := range params {
		if _, dup := slots[p]; dup {
			return nil, fmt.Errorf("symbolic: duplicate parameter %q", p)
		}
		slots[p] = i
	}
	k, err := e.compile(slots)
	if err != nil {
		return nil, err
	}
	return Program(k), nil
}

// Call is a convenience for one-off evaluation.
func (p Program) Call(args ...float64) float64 { return p(args) }

// ============================================================
// Symbol queries and bulk substitution
// ============================================================

// FreeSymbols returns the sorted names of all symbols in e.
func FreeSymbols(e Expr) []string {
	seen := map[string]bool{}
	collectSymbols(e, seen)
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func collectSymbols(e Expr, seen map[string]bool) {
	switch v := e.(type) {
	case *Sym:
		seen[v.name] = true
	case *Add:
		for _, t := range v.terms {
			collectSymbols(t, seen)
		}
	case *Mul:
		for _, f := range v.factors {
			collectSymbols(f, seen)
		}
	case *Pow:
		collectSymbols(v.base, seen)
		collectSymbols(v.exp, seen)
	case *Func:
		collectSymbols(v.arg, seen)
	}
}

// Uses reports whether name appears in e.
func Uses(e Expr, name string) bool {
	seen := map[string]bool{}
	collectSymbols(e, seen)
	return seen[name]
}

// Binding pairs a symbol name with its replacement.
type Binding struct {
	Name  string
	Value Expr
}

// SubAll replaces every bound symbol simultaneously, so a replacement that
// mentions another bound name is not rewritten again.
func SubAll(e Expr, bindings ...Binding) Expr {
	repl := make(map[string]Expr, len(bindings))
	for _, b := range bindings {
		repl[b.Name] = b.Value
	}
	return subAll(e, repl)
}

func subAll(e Expr, repl map[string]Expr) Expr {
	switch v := e.(type) {
	case *Sym:
		if r, ok := repl[v.name]; ok {
			return r
		}
		return v
	case *Add:
		terms := make([]Expr, len(v.terms))
		for i, t := range v.terms {
			terms[i] = subAll(t, repl)
		}
		return AddOf(terms...)
	case *Mul:
		factors := make([]Expr, len(v.factors))
		for i, f := range v.factors {
			factors[i] = subAll(f, repl)
		}
		return MulOf(factors...)
	case *Pow:
		return PowOf(subAll(v.base, repl), subAll(v.exp, repl))
	case *Func:
		return funcOf(v.name, subAll(v.arg, repl)).Simplify()
	}
	return e
}
