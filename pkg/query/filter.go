package query

import (
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/opcode"
	"github.com/pingcap/tidb/pkg/parser/test_driver" // ValueExpr implementation
)

// FilterTranslator validates a caller-supplied filter expression and renders
// it as a Postgres WHERE fragment. The expression is parsed as the WHERE
// clause of a synthetic SELECT; only column references, literals,
// comparisons, AND/OR/NOT, IS NULL, IN and LIKE survive the whitelist, so
// arbitrary SQL (subqueries, functions, casts) is rejected before it ever
// reaches the database.
type FilterTranslator struct {
	parser *parser.Parser
}

// NewFilterTranslator creates a new FilterTranslator
func NewFilterTranslator() *FilterTranslator {
	return &FilterTranslator{parser: parser.New()}
}

// Translate returns the rendered fragment and its bind arguments.
// allowedColumns maps each permitted reference (display name or field id)
// to the physical column it renders as; startParam is the first $n
// placeholder index to use.
func (t *FilterTranslator) Translate(filter string, allowedColumns map[string]string, startParam int) (string, []any, error) {
	stmts, _, err := t.parser.Parse("SELECT 1 FROM t WHERE "+filter, "", "")
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse filter: %v", err)
	}
	if len(stmts) != 1 {
		return "", nil, fmt.Errorf("filter must be a single expression")
	}
	sel, ok := stmts[0].(*ast.SelectStmt)
	if !ok || sel.Where == nil {
		return "", nil, fmt.Errorf("filter is not a boolean expression")
	}

	w := &filterWalker{
		allowed:    allowedColumns,
		paramIndex: startParam,
	}
	w.walk(sel.Where)
	if w.err != nil {
		return "", nil, w.err
	}
	return w.sb.String(), w.args, nil
}

type filterWalker struct {
	sb         strings.Builder
	args       []any
	allowed    map[string]string
	paramIndex int
	err        error
}

func (w *filterWalker) walk(node ast.ExprNode) {
	if w.err != nil {
		return
	}

	switch v := node.(type) {
	case *ast.BinaryOperationExpr:
		w.visitBinary(v)
	case *ast.ParenthesesExpr:
		w.sb.WriteString("(")
		w.walk(v.Expr)
		w.sb.WriteString(")")
	case *ast.UnaryOperationExpr:
		if v.Op != opcode.Not && v.Op != opcode.Not2 {
			w.err = fmt.Errorf("unsupported unary operator in filter: %s", v.Op)
			return
		}
		w.sb.WriteString("NOT (")
		w.walk(v.V)
		w.sb.WriteString(")")
	case *ast.ColumnNameExpr:
		w.visitColumn(v)
	case *test_driver.ValueExpr:
		w.placeholder(v.GetValue())
	case *ast.IsNullExpr:
		w.sb.WriteString("(")
		w.walk(v.Expr)
		if v.Not {
			w.sb.WriteString(" IS NOT NULL")
		} else {
			w.sb.WriteString(" IS NULL")
		}
		w.sb.WriteString(")")
	case *ast.PatternInExpr:
		if v.Sel != nil {
			w.err = fmt.Errorf("subqueries are not allowed in filters")
			return
		}
		w.walk(v.Expr)
		if v.Not {
			w.sb.WriteString(" NOT")
		}
		w.sb.WriteString(" IN (")
		for i, item := range v.List {
			if i > 0 {
				w.sb.WriteString(", ")
			}
			val, ok := item.(*test_driver.ValueExpr)
			if !ok {
				w.err = fmt.Errorf("IN list must contain only literals")
				return
			}
			w.placeholder(val.GetValue())
		}
		w.sb.WriteString(")")
	case *ast.PatternLikeOrIlikeExpr:
		w.walk(v.Expr)
		if v.Not {
			w.sb.WriteString(" NOT")
		}
		w.sb.WriteString(" LIKE ")
		pattern, ok := v.Pattern.(*test_driver.ValueExpr)
		if !ok {
			w.err = fmt.Errorf("LIKE pattern must be a literal")
			return
		}
		w.placeholder(pattern.GetValue())
	default:
		w.err = fmt.Errorf("unsupported filter construct: %T", node)
	}
}

func (w *filterWalker) visitBinary(node *ast.BinaryOperationExpr) {
	var op string
	switch node.Op {
	case opcode.LogicAnd:
		op = "AND"
	case opcode.LogicOr:
		op = "OR"
	case opcode.EQ:
		op = "="
	case opcode.NE:
		op = "<>"
	case opcode.GT:
		op = ">"
	case opcode.GE:
		op = ">="
	case opcode.LT:
		op = "<"
	case opcode.LE:
		op = "<="
	default:
		w.err = fmt.Errorf("unsupported operator in filter: %s", node.Op)
		return
	}

	w.sb.WriteString("(")
	w.walk(node.L)
	w.sb.WriteString(" " + op + " ")
	w.walk(node.R)
	w.sb.WriteString(")")
}

func (w *filterWalker) visitColumn(node *ast.ColumnNameExpr) {
	if node.Name.Schema.O != "" || node.Name.Table.O != "" {
		w.err = fmt.Errorf("qualified column references are not allowed in filters")
		return
	}
	name := node.Name.Name.O
	column, ok := w.allowed[name]
	if !ok {
		w.err = fmt.Errorf("unknown filter column '%s'", name)
		return
	}
	w.sb.WriteString(QuoteIdent(column))
}

func (w *filterWalker) placeholder(value any) {
	fmt.Fprintf(&w.sb, "$%d", w.paramIndex)
	w.paramIndex++
	w.args = append(w.args, value)
}

// QuoteIdent quotes a SQL identifier with double quotes, escaping embedded
// quotes by doubling.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
