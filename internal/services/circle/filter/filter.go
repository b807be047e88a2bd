// Package filter provides AIP-160 filter expression parsing for circle
// listings. Expressions compile to a structured filter that both storage
// backends can apply, so the grammar is restricted to equality tests joined
// by AND.
package filter

import (
	"fmt"
	"strings"

	"github.com/osusu/osusu/internal/services/circle/storage"
	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// CircleDeclarations returns the field declarations for circle filtering.
func CircleDeclarations() (*filtering.Declarations, error) {
	return filtering.NewDeclarations(
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent("dissolved", filtering.TypeBool),
		filtering.DeclareIdent("randomize_order", filtering.TypeBool),
		filtering.DeclareIdent("admin", filtering.TypeString),
		filtering.DeclareIdent("member", filtering.TypeString),
	)
}

// ParseCircleFilter parses an AIP-160 filter expression into a circle
// filter. An empty expression matches everything.
func ParseCircleFilter(filterStr string) (storage.CircleFilter, error) {
	if strings.TrimSpace(filterStr) == "" {
		return storage.CircleFilter{}, nil
	}

	decls, err := CircleDeclarations()
	if err != nil {
		return storage.CircleFilter{}, fmt.Errorf("create declarations: %w", err)
	}

	parsed, err := filtering.ParseFilterString(filterStr, decls)
	if err != nil {
		return storage.CircleFilter{}, fmt.Errorf("parse filter: %w", err)
	}

	var out storage.CircleFilter
	if err := applyExpr(&out, parsed.CheckedExpr.Expr); err != nil {
		return storage.CircleFilter{}, err
	}
	return out, nil
}

func applyExpr(out *storage.CircleFilter, e *expr.Expr) error {
	if e == nil {
		return nil
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_CallExpr:
		return applyCall(out, kind.CallExpr)
	case *expr.Expr_IdentExpr:
		// A bare boolean field, e.g. "dissolved".
		return setBoolField(out, kind.IdentExpr.Name, true)
	default:
		return fmt.Errorf("unsupported expression type: %T", kind)
	}
}

func applyCall(out *storage.CircleFilter, call *expr.Expr_Call) error {
	switch call.Function {
	case "_&&_", "AND":
		if len(call.Args) != 2 {
			return fmt.Errorf("AND requires 2 arguments")
		}
		if err := applyExpr(out, call.Args[0]); err != nil {
			return err
		}
		return applyExpr(out, call.Args[1])
	case "_==_", "=":
		return applyEquals(out, call.Args)
	default:
		return fmt.Errorf("unsupported function: %s", call.Function)
	}
}

func applyEquals(out *storage.CircleFilter, args []*expr.Expr) error {
	if len(args) != 2 {
		return fmt.Errorf("comparison requires 2 arguments")
	}

	field, err := extractFieldName(args[0])
	if err != nil {
		return err
	}

	switch field {
	case "dissolved", "randomize_order":
		value, err := extractBoolValue(args[1])
		if err != nil {
			return fmt.Errorf("field %s: %w", field, err)
		}
		return setBoolField(out, field, value)
	case "admin", "member":
		value, err := extractStringValue(args[1])
		if err != nil {
			return fmt.Errorf("field %s: %w", field, err)
		}
		return setStringField(out, field, value)
	default:
		return fmt.Errorf("unknown field: %s", field)
	}
}

func setBoolField(out *storage.CircleFilter, field string, value bool) error {
	var target **bool
	switch field {
	case "dissolved":
		target = &out.Dissolved
	case "randomize_order":
		target = &out.RandomizeOrder
	default:
		return fmt.Errorf("unknown field: %s", field)
	}
	if *target != nil {
		return fmt.Errorf("field %s appears more than once", field)
	}
	*target = &value
	return nil
}

func setStringField(out *storage.CircleFilter, field string, value string) error {
	var target **string
	switch field {
	case "admin":
		target = &out.Admin
	case "member":
		target = &out.Member
	default:
		return fmt.Errorf("unknown field: %s", field)
	}
	if *target != nil {
		return fmt.Errorf("field %s appears more than once", field)
	}
	*target = &value
	return nil
}

func extractFieldName(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_IdentExpr:
		return kind.IdentExpr.Name, nil
	default:
		return "", fmt.Errorf("expected identifier, got %T", kind)
	}
}

func extractBoolValue(e *expr.Expr) (bool, error) {
	constant, err := extractConstant(e)
	if err != nil {
		return false, err
	}
	kind, ok := constant.ConstantKind.(*expr.Constant_BoolValue)
	if !ok {
		return false, fmt.Errorf("expected boolean value, got %T", constant.ConstantKind)
	}
	return kind.BoolValue, nil
}

func extractStringValue(e *expr.Expr) (string, error) {
	constant, err := extractConstant(e)
	if err != nil {
		return "", err
	}
	kind, ok := constant.ConstantKind.(*expr.Constant_StringValue)
	if !ok {
		return "", fmt.Errorf("expected string value, got %T", constant.ConstantKind)
	}
	return kind.StringValue, nil
}

func extractConstant(e *expr.Expr) (*expr.Constant, error) {
	if e == nil {
		return nil, fmt.Errorf("nil expression")
	}
	kind, ok := e.ExprKind.(*expr.Expr_ConstExpr)
	if !ok {
		return nil, fmt.Errorf("expected constant, got %T", e.ExprKind)
	}
	return kind.ConstExpr, nil
}
