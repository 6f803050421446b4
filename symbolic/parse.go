package symbolic

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/Knetic/govaluate"
)

// ============================================================
// Parsing
// ============================================================

// Parse reads an arithmetic expression such as "x*y + sin(z)**2".
//
// Operators are + - * / and ** (^ is accepted as an alias for **). Unary
// minus binds looser than **, so -x**2 is -(x**2). The names pi and e are
// constants; every other identifier becomes a symbol. sqrt(x) is x**(1/2)
// and log is the natural logarithm. Numbers are plain decimals without an
// exponent part.
func Parse(text string) (Expr, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrSyntax)
	}
	ev, err := govaluate.NewEvaluableExpressionWithFunctions(spaceOperators(text), probeFunctions)
	if err != nil {
		if msg := err.Error(); strings.HasPrefix(msg, "Undefined function ") {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, strings.TrimPrefix(msg, "Undefined function "))
		}
		return nil, fmt.Errorf("%w: %q: %v", ErrSyntax, text, err)
	}
	p := &parser{toks: ev.Tokens()}
	e, err := p.sum()
	if err != nil {
		return nil, fmt.Errorf("%q: %w", text, err)
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("%w: %q: unexpected %v", ErrSyntax, text, p.toks[p.pos].Value)
	}
	return e, nil
}

// MustParse is like Parse but panics on error. For tests and fixed tables.
func MustParse(text string) Expr {
	e, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return e
}

// ParseVector parses up to three component texts. An empty text leaves the
// component absent.
func ParseVector(components ...string) (Vector, error) {
	if len(components) > 3 {
		return Vector{}, fmt.Errorf("%w: %d components", ErrSyntax, len(components))
	}
	var v Vector
	for i, text := range components {
		if strings.TrimSpace(text) == "" {
			continue
		}
		e, err := Parse(text)
		if err != nil {
			return Vector{}, fmt.Errorf("component %d: %w", i, err)
		}
		v[i] = e
	}
	return v, nil
}

// ============================================================
// govaluate function table
// ============================================================

// govaluate stores the function value itself in FUNCTION tokens. Every
// registered function answers a nameProbe with its own name so the parser
// can tell them apart; govaluate never evaluates anything here.
type nameProbe struct{}

var errNotEvaluable = errors.New("symbolic: parse-only function")

var aliases = map[string]string{"log": "ln"}

var probeFunctions = func() map[string]govaluate.ExpressionFunction {
	m := make(map[string]govaluate.ExpressionFunction, len(funcTable)+2)
	register := func(name string) {
		m[name] = func(args ...interface{}) (interface{}, error) {
			if len(args) == 1 {
				if _, ok := args[0].(nameProbe); ok {
					return name, nil
				}
			}
			return nil, errNotEvaluable
		}
	}
	for name := range funcTable {
		register(name)
	}
	register("sqrt")
	for alias := range aliases {
		register(alias)
	}
	return m
}()

func functionName(v interface{}) (string, bool) {
	fn, ok := v.(govaluate.ExpressionFunction)
	if !ok {
		return "", false
	}
	name, err := fn(nameProbe{})
	if err != nil {
		return "", false
	}
	s, ok := name.(string)
	return s, ok
}

// spaceOperators pads arithmetic operators with spaces. govaluate lexes
// runs of symbol characters as one token, so "x*-1" would otherwise read
// as the operator "*-".
func spaceOperators(text string) string {
	var b strings.Builder
	rs := []rune(text)
	for i := 0; i < len(rs); i++ {
		switch r := rs[i]; r {
		case '*':
			if i+1 < len(rs) && rs[i+1] == '*' {
				b.WriteString(" ** ")
				i++
			} else {
				b.WriteString(" * ")
			}
		case '^':
			b.WriteString(" ** ")
		case '+', '-', '/', '%':
			b.WriteRune(' ')
			b.WriteRune(r)
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ============================================================
// Precedence climbing over govaluate tokens
// ============================================================

type parser struct {
	toks []govaluate.ExpressionToken
	pos  int
}

func (p *parser) peek() (govaluate.ExpressionToken, bool) {
	if p.pos >= len(p.toks) {
		return govaluate.ExpressionToken{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) isOp(kind govaluate.TokenKind, ops ...string) (string, bool) {
	tok, ok := p.peek()
	if !ok || tok.Kind != kind {
		return "", false
	}
	s, _ := tok.Value.(string)
	for _, op := range ops {
		if s == op {
			return s, true
		}
	}
	return "", false
}

func (p *parser) sum() (Expr, error) {
	left, err := p.product()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.isOp(govaluate.MODIFIER, "+", "-")
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.product()
		if err != nil {
			return nil, err
		}
		if op == "+" {
			left = AddOf(left, right)
		} else {
			left = SubOf(left, right)
		}
	}
}

func (p *parser) product() (Expr, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.isOp(govaluate.MODIFIER, "*", "/")
		if !ok {
			if tok, more := p.peek(); more && tok.Kind == govaluate.MODIFIER {
				if s, _ := tok.Value.(string); s != "+" && s != "-" && s != "**" {
					return nil, fmt.Errorf("%w: unsupported operator %s", ErrSyntax, s)
				}
			}
			return left, nil
		}
		p.pos++
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		if op == "*" {
			left = MulOf(left, right)
		} else {
			left = QuoOf(left, right)
		}
	}
}

func (p *parser) unary() (Expr, error) {
	tok, ok := p.peek()
	if ok && tok.Kind == govaluate.PREFIX {
		if s, _ := tok.Value.(string); s != "-" {
			return nil, fmt.Errorf("%w: unsupported prefix %s", ErrSyntax, s)
		}
		p.pos++
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return MulOf(N(-1), operand), nil
	}
	return p.power()
}

func (p *parser) power() (Expr, error) {
	base, err := p.primary()
	if err != nil {
		return nil, err
	}
	if _, ok := p.isOp(govaluate.MODIFIER, "**"); !ok {
		return base, nil
	}
	p.pos++
	exp, err := p.unary()
	if err != nil {
		return nil, err
	}
	return PowOf(base, exp), nil
}

func (p *parser) primary() (Expr, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("%w: unexpected end of expression", ErrSyntax)
	}
	p.pos++
	switch tok.Kind {
	case govaluate.NUMERIC:
		return literal(tok.Value.(float64)), nil
	case govaluate.VARIABLE:
		name := tok.Value.(string)
		switch name {
		case "pi":
			return NFloat(math.Pi), nil
		case "e":
			return NFloat(math.E), nil
		}
		return S(name), nil
	case govaluate.CLAUSE:
		inner, err := p.sum()
		if err != nil {
			return nil, err
		}
		if err := p.closeClause(); err != nil {
			return nil, err
		}
		return inner, nil
	case govaluate.FUNCTION:
		name, known := functionName(tok.Value)
		if !known {
			return nil, fmt.Errorf("%w: unrecognised function token", ErrUnknownFunction)
		}
		if next, more := p.peek(); !more || next.Kind != govaluate.CLAUSE {
			return nil, fmt.Errorf("%w: %s needs an argument list", ErrSyntax, name)
		}
		p.pos++
		arg, err := p.sum()
		if err != nil {
			return nil, err
		}
		if err := p.closeClause(); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if name == "sqrt" {
			return SqrtOf(arg), nil
		}
		if alias, ok := aliases[name]; ok {
			name = alias
		}
		return Apply(name, arg)
	}
	return nil, fmt.Errorf("%w: unexpected %v", ErrSyntax, tok.Value)
}

func (p *parser) closeClause() error {
	tok, ok := p.peek()
	if !ok || tok.Kind != govaluate.CLAUSE_CLOSE {
		return fmt.Errorf("%w: expected closing parenthesis", ErrSyntax)
	}
	p.pos++
	return nil
}

// literal turns a lexed decimal into the rational it was written as, so
// 0.1 is 1/10 rather than the nearest binary float.
func literal(f float64) *Num {
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(f, 'g', -1, 64))
	if !ok {
		return NFloat(f)
	}
	return &Num{val: r}
}
