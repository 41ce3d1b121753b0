package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// ErrNotAllowed is returned when a query refers a column out of the allow-list of its table.
var ErrNotAllowed = errors.New("column is not allowed")

type Op int

const (
	OpEq Op = iota
	OpNotEq
	OpIn
	OpIsNull
	OpIsNotNull
	OpBefore
)

// Cond is a condition on a column. Conditions in a query are joined with AND.
type Cond struct {
	Column Column
	Op     Op
	Values []any
}

func Eq(c Column, v any) Cond { return Cond{Column: c, Op: OpEq, Values: []any{v}} }

func NotEq(c Column, v any) Cond { return Cond{Column: c, Op: OpNotEq, Values: []any{v}} }

// In matches rows whose column is one of vs. With no vs, it matches nothing.
func In[T any](c Column, vs ...T) Cond {
	values := make([]any, len(vs))
	for i := range vs {
		values[i] = vs[i]
	}
	return Cond{Column: c, Op: OpIn, Values: values}
}

func IsNull(c Column) Cond { return Cond{Column: c, Op: OpIsNull} }

func IsNotNull(c Column) Cond { return Cond{Column: c, Op: OpIsNotNull} }

// Before matches rows whose timestamp column is earlier than t.
func Before(c Column, t time.Time) Cond {
	return Cond{Column: c, Op: OpBefore, Values: []any{t}}
}

// Assign sets a value to a column by Update.
type Assign struct {
	Column Column
	Value  any
}

func Set(c Column, v any) Assign { return Assign{Column: c, Value: v} }

// Validate checks every column in where and set against the allow-list of s.
func (s *Schema) Validate(where []Cond, set []Assign) error {
	for _, w := range where {
		if !s.Allows(w.Column) {
			return fmt.Errorf("%w: %s in %s", ErrNotAllowed, w.Column, s.name)
		}
		if w.Op == OpBefore && w.Column.kind != Timestamp {
			return fmt.Errorf("%w: %s is not a timestamp", ErrNotAllowed, w.Column)
		}
	}
	for _, a := range set {
		if !s.Allows(a.Column) || a.Column.IsField() {
			return fmt.Errorf("%w: %s in %s (for update)", ErrNotAllowed, a.Column, s.name)
		}
	}
	return nil
}

// Encode converts a Go value to the neutral storage representation of column c.
//
//   - Text: string (values with String() method are stringified).
//   - Int: int64.
//   - JSON: string holding JSON text, or nil for nil values.
//   - Timestamp: time.Time in UTC, or nil.
func Encode(c Column, v any) (any, error) {
	if isNil(v) {
		return nil, nil
	}
	switch c.kind {
	case Text:
		switch vv := v.(type) {
		case string:
			return vv, nil
		case fmt.Stringer:
			return vv.String(), nil
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.String {
			return rv.String(), nil
		}
		return nil, fmt.Errorf("%s: text is expected, but got %T", c, v)
	case Int:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return rv.Int(), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
			return int64(rv.Uint()), nil
		}
		return nil, fmt.Errorf("%s: integer is expected, but got %T", c, v)
	case JSON:
		if raw, ok := v.(json.RawMessage); ok {
			return string(raw), nil
		}
		buf, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c, err)
		}
		return string(buf), nil
	case Timestamp:
		switch vv := v.(type) {
		case time.Time:
			if vv.IsZero() {
				return nil, nil
			}
			return vv.UTC(), nil
		case *time.Time:
			return vv.UTC(), nil
		}
		return nil, fmt.Errorf("%s: time.Time is expected, but got %T", c, v)
	}
	return nil, fmt.Errorf("%s: unknown column kind", c)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// Dialect renders the SQL differences between backends.
type Dialect interface {
	// Placeholder returns the n-th (1-origin) bind parameter.
	Placeholder(n int) string

	// Field returns an expression extracting key from the JSON column as text.
	Field(column, key string) string

	// Arg converts an encoded value of column c to a bind argument.
	Arg(c Column, v any) any
}

// Ident quotes an identifier.
func Ident(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

type builder struct {
	d    Dialect
	args []any
}

func (b *builder) bind(c Column, v any) (string, error) {
	enc, err := Encode(c, v)
	if err != nil {
		return "", err
	}
	b.args = append(b.args, b.d.Arg(c, enc))
	return b.d.Placeholder(len(b.args)), nil
}

func (b *builder) expr(c Column) string {
	if c.IsField() {
		return b.d.Field(c.name, c.key)
	}
	return Ident(c.name)
}

func (b *builder) where(conds []Cond) (string, error) {
	if len(conds) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(conds))
	for _, w := range conds {
		lhs := b.expr(w.Column)
		switch w.Op {
		case OpEq, OpNotEq, OpBefore:
			if len(w.Values) != 1 {
				return "", fmt.Errorf("%s: one value is expected", w.Column)
			}
			p, err := b.bind(w.Column, w.Values[0])
			if err != nil {
				return "", err
			}
			op := "="
			switch w.Op {
			case OpNotEq:
				op = "<>"
			case OpBefore:
				op = "<"
			}
			clauses = append(clauses, fmt.Sprintf("%s %s %s", lhs, op, p))
		case OpIn:
			if len(w.Values) == 0 {
				clauses = append(clauses, "false")
				continue
			}
			ps := make([]string, 0, len(w.Values))
			for _, v := range w.Values {
				p, err := b.bind(w.Column, v)
				if err != nil {
					return "", err
				}
				ps = append(ps, p)
			}
			clauses = append(clauses, fmt.Sprintf("%s in (%s)", lhs, strings.Join(ps, ", ")))
		case OpIsNull:
			clauses = append(clauses, fmt.Sprintf("%s is null", lhs))
		case OpIsNotNull:
			clauses = append(clauses, fmt.Sprintf("%s is not null", lhs))
		default:
			return "", fmt.Errorf("%s: unknown operator %d", w.Column, w.Op)
		}
	}
	return " where " + strings.Join(clauses, " and "), nil
}

func columnList(cols []Column) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = Ident(c.name)
	}
	return strings.Join(names, ", ")
}

// SelectSQL renders "select <all columns> from <table> where ...".
func SelectSQL(d Dialect, s *Schema, where []Cond) (string, []any, error) {
	if err := s.Validate(where, nil); err != nil {
		return "", nil, err
	}
	b := &builder{d: d}
	w, err := b.where(where)
	if err != nil {
		return "", nil, err
	}
	order := columnList(s.key)
	return fmt.Sprintf(
		"select %s from %s%s order by %s",
		columnList(s.columns), Ident(s.name), w, order,
	), b.args, nil
}

// UpdateSQL renders "update <table> set ... where ...".
//
// Updating without any condition is refused.
func UpdateSQL(d Dialect, s *Schema, where []Cond, set []Assign) (string, []any, error) {
	if err := s.Validate(where, set); err != nil {
		return "", nil, err
	}
	if len(where) == 0 {
		return "", nil, fmt.Errorf("update %s: no condition", s.name)
	}
	if len(set) == 0 {
		return "", nil, fmt.Errorf("update %s: nothing to set", s.name)
	}
	b := &builder{d: d}
	assigns := make([]string, 0, len(set))
	for _, a := range set {
		p, err := b.bind(a.Column, a.Value)
		if err != nil {
			return "", nil, err
		}
		assigns = append(assigns, fmt.Sprintf("%s = %s", Ident(a.Column.name), p))
	}
	w, err := b.where(where)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf(
		"update %s set %s%s", Ident(s.name), strings.Join(assigns, ", "), w,
	), b.args, nil
}

// InsertSQL renders "insert into <table> (<all columns>) values (...)" for a Record.
func InsertSQL(d Dialect, s *Schema, r Record) (string, []any, error) {
	if r.schema != s {
		return "", nil, fmt.Errorf("insert %s: record of %s", s.name, r.schema.name)
	}
	args := make([]any, len(s.columns))
	ps := make([]string, len(s.columns))
	for i, c := range s.columns {
		args[i] = d.Arg(c, r.values[i])
		ps[i] = d.Placeholder(i + 1)
	}
	return fmt.Sprintf(
		"insert into %s (%s) values (%s)",
		Ident(s.name), columnList(s.columns), strings.Join(ps, ", "),
	), args, nil
}

// CountByStatusSQL renders a query counting rows per status.
func CountByStatusSQL(s *Schema) string {
	st := Ident(s.StatusColumn().name)
	return fmt.Sprintf(
		"select %s, count(*) from %s group by %s order by %s",
		st, Ident(s.name), st, st,
	)
}
