package expression

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	// SQLite does the arithmetic; no tables are ever created.
	_ "github.com/mattn/go-sqlite3"

	"github.com/flowkit/topicflow/errors"
)

// Calculator evaluates arithmetic, boolean, and string comparison
// expressions by delegating to an in-memory SQLite connection. An
// expression like "(1.3*5)+3" runs as "SELECT (1.3*5)+3;". Boolean
// results are canonicalized to "1"/"0" and numbers are rendered as
// plain decimal strings regardless of host locale.
type Calculator struct {
	db *sql.DB
}

// NewCalculator opens the in-memory evaluation connection.
func NewCalculator() (*Calculator, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, errors.WrapFatal(err, "calculator", "NewCalculator", "open in-memory database")
	}
	return &Calculator{db: db}, nil
}

// Evaluate normalizes the expression to SQL and returns the scalar result
// as a string. Malformed expressions return an error wrapping
// ErrEvaluationFailed; callers treat this as a per-rule failure, never
// fatal.
func (c *Calculator) Evaluate(ctx context.Context, expr string) (string, error) {
	normalized := strings.TrimSpace(normalizeCalcExpr(expr))
	if normalized == "" {
		return "", errors.WrapInvalid(errors.ErrEvaluationFailed, "calculator", "Evaluate", "evaluate empty expression")
	}

	var result any
	if err := c.db.QueryRowContext(ctx, "SELECT "+normalized+";").Scan(&result); err != nil {
		return "", errors.WrapInvalid(
			fmt.Errorf("%w: %q: %v", errors.ErrEvaluationFailed, expr, err),
			"calculator", "Evaluate", "evaluate expression")
	}
	return formatScalar(result), nil
}

// Close releases the evaluation connection.
func (c *Calculator) Close() error {
	return c.db.Close()
}

// normalizeCalcExpr rewrites C-style operators and literals into the SQL
// dialect: && -> AND, || -> OR, not -> NOT, true -> 1, false -> 0.
// Quoted strings pass through untouched.
func normalizeCalcExpr(expr string) string {
	var b strings.Builder
	b.Grow(len(expr) + 8)

	for i := 0; i < len(expr); {
		ch := expr[i]
		switch {
		case ch == '\'' || ch == '"':
			end := skipQuoted(expr, i)
			b.WriteString(expr[i : end+1])
			i = end + 1
		case ch == '&' && i+1 < len(expr) && expr[i+1] == '&':
			b.WriteString(" AND ")
			i += 2
		case ch == '|' && i+1 < len(expr) && expr[i+1] == '|':
			b.WriteString(" OR ")
			i += 2
		case isIdentChar(ch):
			j := i
			for j < len(expr) && isIdentChar(expr[j]) {
				j++
			}
			word := expr[i:j]
			switch {
			case strings.EqualFold(word, "true"):
				b.WriteByte('1')
			case strings.EqualFold(word, "false"):
				b.WriteByte('0')
			case strings.EqualFold(word, "not"):
				b.WriteString("NOT")
			default:
				b.WriteString(word)
			}
			i = j
		default:
			b.WriteByte(ch)
			i++
		}
	}
	return b.String()
}

// formatScalar renders a SQLite scalar as the canonical string form used
// throughout rule payloads.
func formatScalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		if x {
			return "1"
		}
		return "0"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []byte:
		return string(x)
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func isIdentChar(ch byte) bool {
	return ch == '_' || unicode.IsLetter(rune(ch)) || unicode.IsDigit(rune(ch))
}
