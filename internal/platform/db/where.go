package db

import (
	"strconv"
	"strings"
)

// Where accumulates AND-ed conditions with positional arguments for dynamic
// list queries. Use "?" in a condition where the next placeholder goes.
type Where struct {
	conds []string
	args  []any
}

// Add appends a condition. Each "?" is replaced by the next $n placeholder and
// consumes one argument.
func (w *Where) Add(cond string, args ...any) *Where {
	var b strings.Builder
	i := 0
	for _, r := range cond {
		if r == '?' && i < len(args) {
			w.args = append(w.args, args[i])
			b.WriteString("$" + strconv.Itoa(len(w.args)))
			i++
			continue
		}
		b.WriteRune(r)
	}
	w.conds = append(w.conds, b.String())
	return w
}

// AddIf appends the condition only when ok is true.
func (w *Where) AddIf(ok bool, cond string, args ...any) *Where {
	if ok {
		w.Add(cond, args...)
	}
	return w
}

// SQL renders " WHERE a AND b" or an empty string.
func (w *Where) SQL() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// Args returns the collected arguments.
func (w *Where) Args() []any {
	return append([]any(nil), w.args...)
}

// Page appends LIMIT/OFFSET placeholders and returns the clause and the full argument list.
func (w *Where) Page(limit, offset int) (string, []any) {
	args := w.Args()
	args = append(args, limit, offset)
	n := len(args)
	return " LIMIT $" + strconv.Itoa(n-1) + " OFFSET $" + strconv.Itoa(n), args
}
