package formula

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Engine evaluates formula expressions on top of expr-lang. Field references
// are written as {fieldName} or {fieldId}; Rewrite substitutes each token
// with a safe identifier before compilation, so the expression handed to
// expr never contains user-controlled identifiers.
type Engine struct {
	programCache map[string]*vm.Program
	mu           sync.RWMutex
}

// NewEngine creates a new formula engine
func NewEngine() *Engine {
	return &Engine{
		programCache: make(map[string]*vm.Program),
	}
}

// Evaluate runs expression with the given field values. values is keyed by
// reference token, i.e. whatever appeared between the braces.
func (e *Engine) Evaluate(expression string, values map[string]any) (any, error) {
	rewritten, refs, err := Rewrite(expression)
	if err != nil {
		return nil, err
	}

	env := make(map[string]any, len(refs)+1)
	for ident, token := range refs {
		v, ok := values[token]
		if !ok {
			v = nil
		}
		env[ident] = normalize(v)
	}

	program, err := e.getProgram(rewritten, env)
	if err != nil {
		return nil, err
	}
	return expr.Run(program, env)
}

// Validate checks the expression syntax without running it. sampleValues
// provides one representative value per referenced token.
func (e *Engine) Validate(expression string, sampleValues map[string]any) error {
	rewritten, refs, err := Rewrite(expression)
	if err != nil {
		return err
	}
	env := make(map[string]any, len(refs))
	for ident, token := range refs {
		env[ident] = normalize(sampleValues[token])
	}
	_, err = expr.Compile(rewritten, e.options(env)...)
	return err
}

func (e *Engine) getProgram(rewritten string, env map[string]any) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.programCache[rewritten]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double check
	if prog, ok := e.programCache[rewritten]; ok {
		return prog, nil
	}

	prog, err := expr.Compile(rewritten, e.options(env)...)
	if err != nil {
		return nil, fmt.Errorf("failed to compile formula: %w", err)
	}
	e.programCache[rewritten] = prog
	return prog, nil
}

func (e *Engine) options(env map[string]any) []expr.Option {
	return []expr.Option{
		expr.Env(env),
		expr.AllowUndefinedVariables(),
		expr.Function("TODAY", func(params ...any) (any, error) {
			return time.Now().UTC().Format("2006-01-02"), nil
		}),
		expr.Function("NOW", func(params ...any) (any, error) {
			return time.Now().UTC().Format(time.RFC3339), nil
		}),
		expr.Function("IF", func(params ...any) (any, error) {
			if len(params) != 3 {
				return nil, fmt.Errorf("IF requires 3 arguments")
			}
			cond, ok := params[0].(bool)
			if !ok {
				return nil, fmt.Errorf("IF condition must be boolean")
			}
			if cond {
				return params[1], nil
			}
			return params[2], nil
		}),
		expr.Function("LEN", func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("LEN requires 1 argument")
			}
			s, ok := params[0].(string)
			if !ok {
				return nil, fmt.Errorf("LEN argument must be string")
			}
			return len(s), nil
		}),
		expr.Function("UPPER", func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("UPPER requires 1 argument")
			}
			s, ok := params[0].(string)
			if !ok {
				return nil, fmt.Errorf("UPPER argument must be string")
			}
			return strings.ToUpper(s), nil
		}),
		expr.Function("LOWER", func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("LOWER requires 1 argument")
			}
			s, ok := params[0].(string)
			if !ok {
				return nil, fmt.Errorf("LOWER argument must be string")
			}
			return strings.ToLower(s), nil
		}),
		expr.Function("CONCAT", func(params ...any) (any, error) {
			var sb strings.Builder
			for _, p := range params {
				if p == nil {
					continue
				}
				sb.WriteString(fmt.Sprintf("%v", p))
			}
			return sb.String(), nil
		}),
		expr.Function("ROUND", func(params ...any) (any, error) {
			if len(params) < 1 || len(params) > 2 {
				return nil, fmt.Errorf("ROUND requires 1 or 2 arguments")
			}
			val, err := toFloat(params[0])
			if err != nil {
				return nil, fmt.Errorf("ROUND arg 1 must be number")
			}
			prec := 0
			if len(params) == 2 {
				p, err := toFloat(params[1])
				if err != nil {
					return nil, fmt.Errorf("ROUND arg 2 must be integer")
				}
				prec = int(p)
			}
			mult := math.Pow(10, float64(prec))
			return math.Round(val*mult) / mult, nil
		}),
		expr.Function("ABS", func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("ABS requires 1 argument")
			}
			val, err := toFloat(params[0])
			if err != nil {
				return nil, fmt.Errorf("ABS argument must be number")
			}
			return math.Abs(val), nil
		}),
	}
}

// normalize coerces numeric cell values to float64 so mixed int/float
// arithmetic behaves uniformly inside expr.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("not a number: %T", v)
}
