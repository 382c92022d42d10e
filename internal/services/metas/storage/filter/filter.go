// Package filter parses AIP-160 filter expressions over results into a
// backend-neutral condition tree that renders to SQL or evaluates in memory.
package filter

import (
	"fmt"
	"strings"
	"time"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	apperrors "github.com/louisbranch/metas/internal/platform/errors"
)

// Field names accepted in result filters.
const (
	FieldGoalID      = "goal_id"
	FieldWindowID    = "window_id"
	FieldStatus      = "status"
	FieldSubmittedBy = "submitted_by"
	FieldReviewedBy  = "reviewed_by"
	FieldCreateTime  = "create_time"
	FieldUpdateTime  = "update_time"
)

// ResultDeclarations returns the identifier declarations for result filters.
func ResultDeclarations() (*filtering.Declarations, error) {
	return filtering.NewDeclarations(
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent(FieldGoalID, filtering.TypeString),
		filtering.DeclareIdent(FieldWindowID, filtering.TypeString),
		filtering.DeclareIdent(FieldStatus, filtering.TypeString),
		filtering.DeclareIdent(FieldSubmittedBy, filtering.TypeString),
		filtering.DeclareIdent(FieldReviewedBy, filtering.TypeString),
		filtering.DeclareIdent(FieldCreateTime, filtering.TypeTimestamp),
		filtering.DeclareIdent(FieldUpdateTime, filtering.TypeTimestamp),
	)
}

// Op is a comparison operator.
type Op string

const (
	OpEq Op = "="
	OpNe Op = "!="
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

// Condition is a node of a parsed filter. Exactly one of the groups is set:
// And/Or carry two children, Not carries one, otherwise it is a comparison.
type Condition struct {
	And   []Condition
	Or    []Condition
	Not   *Condition
	Field string
	Op    Op
	// Value is a string or a time.Time.
	Value any
}

// SQLCondition represents a SQL WHERE clause fragment with parameters.
type SQLCondition struct {
	Clause string
	Params []any
}

// Parse parses an AIP-160 filter. An empty filter yields a nil condition
// that matches everything.
func Parse(raw string) (*Condition, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	decls, err := ResultDeclarations()
	if err != nil {
		return nil, fmt.Errorf("create declarations: %w", err)
	}
	parsed, err := filtering.ParseFilterString(raw, decls)
	if err != nil {
		return nil, invalid(err.Error())
	}
	cond, err := translateExpr(parsed.CheckedExpr.GetExpr())
	if err != nil {
		return nil, err
	}
	return &cond, nil
}

func invalid(reason string) error {
	return apperrors.WithMetadata(apperrors.CodeFilterInvalid, "invalid filter: "+reason, map[string]string{"Reason": reason})
}

func translateExpr(e *expr.Expr) (Condition, error) {
	if e == nil {
		return Condition{}, invalid("empty expression")
	}
	call, ok := e.ExprKind.(*expr.Expr_CallExpr)
	if !ok {
		return Condition{}, invalid(fmt.Sprintf("unsupported expression type %T", e.ExprKind))
	}
	return translateCall(call.CallExpr)
}

func translateCall(call *expr.Expr_Call) (Condition, error) {
	switch call.Function {
	case filtering.FunctionAnd:
		return translateJunction(call.Args, func(children []Condition) Condition { return Condition{And: children} })
	case filtering.FunctionOr:
		return translateJunction(call.Args, func(children []Condition) Condition { return Condition{Or: children} })
	case filtering.FunctionNot:
		if len(call.Args) != 1 {
			return Condition{}, invalid("NOT requires 1 argument")
		}
		inner, err := translateExpr(call.Args[0])
		if err != nil {
			return Condition{}, err
		}
		return Condition{Not: &inner}, nil
	case filtering.FunctionEquals:
		return translateComparison(call.Args, OpEq)
	case filtering.FunctionNotEquals:
		return translateComparison(call.Args, OpNe)
	case filtering.FunctionLessThan:
		return translateComparison(call.Args, OpLt)
	case filtering.FunctionLessEquals:
		return translateComparison(call.Args, OpLe)
	case filtering.FunctionGreaterThan:
		return translateComparison(call.Args, OpGt)
	case filtering.FunctionGreaterEquals:
		return translateComparison(call.Args, OpGe)
	default:
		return Condition{}, invalid("unsupported function " + call.Function)
	}
}

func translateJunction(args []*expr.Expr, build func([]Condition) Condition) (Condition, error) {
	if len(args) < 2 {
		return Condition{}, invalid("junction requires 2 arguments")
	}
	children := make([]Condition, 0, len(args))
	for _, arg := range args {
		child, err := translateExpr(arg)
		if err != nil {
			return Condition{}, err
		}
		children = append(children, child)
	}
	return build(children), nil
}

func translateComparison(args []*expr.Expr, op Op) (Condition, error) {
	if len(args) != 2 {
		return Condition{}, invalid("comparison requires 2 arguments")
	}
	ident, ok := args[0].GetExprKind().(*expr.Expr_IdentExpr)
	if !ok {
		return Condition{}, invalid("left side of a comparison must be a field")
	}
	field := ident.IdentExpr.GetName()
	value, err := extractValue(args[1])
	if err != nil {
		return Condition{}, err
	}
	if raw, ok := value.(string); ok && isTimestampField(field) {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return Condition{}, invalid("invalid timestamp " + raw)
		}
		value = parsed.UTC()
	}
	return Condition{Field: field, Op: op, Value: value}, nil
}

func isTimestampField(field string) bool {
	return field == FieldCreateTime || field == FieldUpdateTime
}

func extractValue(e *expr.Expr) (any, error) {
	switch kind := e.GetExprKind().(type) {
	case *expr.Expr_ConstExpr:
		if s, ok := kind.ConstExpr.GetConstantKind().(*expr.Constant_StringValue); ok {
			return s.StringValue, nil
		}
		return nil, invalid("only string constants are supported")
	case *expr.Expr_CallExpr:
		if kind.CallExpr.Function == filtering.FunctionTimestamp && len(kind.CallExpr.Args) == 1 {
			return extractTimestamp(kind.CallExpr.Args[0])
		}
		return nil, invalid("unsupported function in value position " + kind.CallExpr.Function)
	default:
		return nil, invalid(fmt.Sprintf("expected constant or timestamp, got %T", kind))
	}
}

func extractTimestamp(e *expr.Expr) (time.Time, error) {
	constant, ok := e.GetExprKind().(*expr.Expr_ConstExpr)
	if !ok {
		return time.Time{}, invalid("timestamp argument must be a constant string")
	}
	s, ok := constant.ConstExpr.GetConstantKind().(*expr.Constant_StringValue)
	if !ok {
		return time.Time{}, invalid("timestamp argument must be a string")
	}
	parsed, err := time.Parse(time.RFC3339Nano, s.StringValue)
	if err != nil {
		return time.Time{}, invalid("invalid timestamp " + s.StringValue)
	}
	return parsed.UTC(), nil
}

// SQL renders c against columns, which maps filter fields to column names.
// Timestamps are rendered as Unix milliseconds.
func (c *Condition) SQL(columns map[string]string) (SQLCondition, error) {
	if c == nil {
		return SQLCondition{}, nil
	}
	switch {
	case len(c.And) > 0:
		return joinSQL(c.And, " AND ", columns)
	case len(c.Or) > 0:
		return joinSQL(c.Or, " OR ", columns)
	case c.Not != nil:
		inner, err := c.Not.SQL(columns)
		if err != nil {
			return SQLCondition{}, err
		}
		return SQLCondition{Clause: "NOT (" + inner.Clause + ")", Params: inner.Params}, nil
	}
	column, ok := columns[c.Field]
	if !ok {
		return SQLCondition{}, invalid("unknown field " + c.Field)
	}
	value := c.Value
	if ts, ok := value.(time.Time); ok {
		value = ts.UTC().UnixMilli()
	}
	return SQLCondition{
		Clause: fmt.Sprintf("%s %s ?", column, c.Op),
		Params: []any{value},
	}, nil
}

func joinSQL(children []Condition, sep string, columns map[string]string) (SQLCondition, error) {
	clauses := make([]string, 0, len(children))
	var params []any
	for i := range children {
		rendered, err := children[i].SQL(columns)
		if err != nil {
			return SQLCondition{}, err
		}
		clauses = append(clauses, rendered.Clause)
		params = append(params, rendered.Params...)
	}
	return SQLCondition{
		Clause: "(" + strings.Join(clauses, sep) + ")",
		Params: params,
	}, nil
}

// Match evaluates c against a record whose field values are returned by
// lookup. Unknown fields never match.
func (c *Condition) Match(lookup func(field string) (any, bool)) bool {
	if c == nil {
		return true
	}
	switch {
	case len(c.And) > 0:
		for i := range c.And {
			if !c.And[i].Match(lookup) {
				return false
			}
		}
		return true
	case len(c.Or) > 0:
		for i := range c.Or {
			if c.Or[i].Match(lookup) {
				return true
			}
		}
		return false
	case c.Not != nil:
		return !c.Not.Match(lookup)
	}
	actual, ok := lookup(c.Field)
	if !ok {
		return false
	}
	cmp, ok := compare(actual, c.Value)
	if !ok {
		return false
	}
	switch c.Op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	}
	return false
}

func compare(actual, expected any) (int, bool) {
	switch want := expected.(type) {
	case string:
		got, ok := actual.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(got, want), true
	case time.Time:
		got, ok := actual.(time.Time)
		if !ok {
			return 0, false
		}
		// Stored timestamps carry millisecond precision.
		return got.Truncate(time.Millisecond).Compare(want.Truncate(time.Millisecond)), true
	}
	return 0, false
}
