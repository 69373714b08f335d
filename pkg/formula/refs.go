package formula

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr/parser"
)

var refPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// Rewrite replaces every {token} reference with a generated identifier
// (_f0, _f1, ...) and returns the rewritten expression plus the
// identifier-to-token mapping. Identical tokens share one identifier. The
// rewritten expression is parsed once to surface syntax errors early.
func Rewrite(expression string) (string, map[string]string, error) {
	if strings.TrimSpace(expression) == "" {
		return "", nil, fmt.Errorf("empty formula expression")
	}

	refs := make(map[string]string)
	byToken := make(map[string]string)

	rewritten := refPattern.ReplaceAllStringFunc(expression, func(m string) string {
		token := strings.TrimSpace(m[1 : len(m)-1])
		if ident, ok := byToken[token]; ok {
			return ident
		}
		ident := fmt.Sprintf("_f%d", len(byToken))
		byToken[token] = ident
		refs[ident] = token
		return ident
	})

	if strings.ContainsAny(rewritten, "{}") {
		return "", nil, fmt.Errorf("unbalanced braces in formula expression")
	}

	if _, err := parser.Parse(rewritten); err != nil {
		return "", nil, fmt.Errorf("failed to parse formula: %w", err)
	}

	return rewritten, refs, nil
}

// ExtractReferences returns the distinct reference tokens of an expression
// in first-appearance order. The dependency graph resolves each token to a
// field by id first, then by display name.
func ExtractReferences(expression string) ([]string, error) {
	_, refs, err := Rewrite(expression)
	if err != nil {
		return nil, err
	}

	// refs is keyed by generated identifier _fN; restore appearance order
	tokens := make([]string, len(refs))
	for ident, token := range refs {
		var n int
		if _, err := fmt.Sscanf(ident, "_f%d", &n); err != nil || n >= len(tokens) {
			return nil, fmt.Errorf("unexpected reference identifier %q", ident)
		}
		tokens[n] = token
	}
	return tokens, nil
}
