package literal

import (
	"fmt"
	"go/ast"
	"go/token"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// eval interprets a Go expression with vars as its only scope. There are no
// functions, no assignments and no access to anything outside vars.
func eval(e ast.Expr, vars map[string]any) (any, error) {
	switch n := e.(type) {
	case *ast.BasicLit:
		return evalLiteral(n)

	case *ast.Ident:
		switch n.Name {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "nil":
			return nil, nil
		}
		v, ok := vars[n.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s is not defined", ErrUndefined, n.Name)
		}
		return normalize(v), nil

	case *ast.ParenExpr:
		return eval(n.X, vars)

	case *ast.UnaryExpr:
		x, err := eval(n.X, vars)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case token.NOT:
			return !truthy(x), nil
		case token.SUB:
			return -toNumber(x), nil
		case token.ADD:
			return toNumber(x), nil
		}
		return nil, fmt.Errorf("%w: unary operator %s", ErrUnsupported, n.Op)

	case *ast.BinaryExpr:
		return evalBinary(n, vars)

	case *ast.SelectorExpr:
		x, err := eval(n.X, vars)
		if err != nil {
			return nil, err
		}
		return selectField(x, n.Sel.Name)

	case *ast.IndexExpr:
		x, err := eval(n.X, vars)
		if err != nil {
			return nil, err
		}
		idx, err := eval(n.Index, vars)
		if err != nil {
			return nil, err
		}
		return index(x, idx)

	case *ast.CallExpr:
		return nil, fmt.Errorf("%w: function calls are not allowed", ErrUnsupported)
	}

	return nil, fmt.Errorf("%w: %T", ErrUnsupported, e)
}

func evalLiteral(lit *ast.BasicLit) (any, error) {
	switch lit.Kind {
	case token.INT:
		if i, err := strconv.ParseInt(lit.Value, 0, 64); err == nil {
			return float64(i), nil
		}
		fallthrough
	case token.FLOAT:
		f, err := strconv.ParseFloat(lit.Value, 64)
		if err != nil {
			return nil, err
		}
		return f, nil
	case token.STRING, token.CHAR:
		return strconv.Unquote(lit.Value)
	}
	return nil, fmt.Errorf("%w: %s literal", ErrUnsupported, lit.Kind)
}

func evalBinary(n *ast.BinaryExpr, vars map[string]any) (any, error) {
	x, err := eval(n.X, vars)
	if err != nil {
		return nil, err
	}

	// && and || yield the operand that decided the result
	switch n.Op {
	case token.LAND:
		if !truthy(x) {
			return x, nil
		}
		return eval(n.Y, vars)
	case token.LOR:
		if truthy(x) {
			return x, nil
		}
		return eval(n.Y, vars)
	}

	y, err := eval(n.Y, vars)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case token.ADD:
		_, xs := x.(string)
		_, ys := y.(string)
		if xs || ys {
			return stringify(x) + stringify(y), nil
		}
		return toNumber(x) + toNumber(y), nil
	case token.SUB:
		return toNumber(x) - toNumber(y), nil
	case token.MUL:
		return toNumber(x) * toNumber(y), nil
	case token.QUO:
		return toNumber(x) / toNumber(y), nil
	case token.REM:
		return math.Mod(toNumber(x), toNumber(y)), nil
	case token.EQL:
		return sameValue(x, y), nil
	case token.NEQ:
		return !sameValue(x, y), nil
	case token.LSS, token.LEQ, token.GTR, token.GEQ:
		return compare(n.Op, x, y), nil
	}

	return nil, fmt.Errorf("%w: binary operator %s", ErrUnsupported, n.Op)
}

func compare(op token.Token, x, y any) bool {
	xs, xok := x.(string)
	ys, yok := y.(string)
	if xok && yok {
		c := strings.Compare(xs, ys)
		switch op {
		case token.LSS:
			return c < 0
		case token.LEQ:
			return c <= 0
		case token.GTR:
			return c > 0
		}
		return c >= 0
	}

	// NaN compares false either way
	a, b := toNumber(x), toNumber(y)
	switch op {
	case token.LSS:
		return a < b
	case token.LEQ:
		return a <= b
	case token.GTR:
		return a > b
	}
	return a >= b
}

func selectField(x any, name string) (any, error) {
	if x == nil {
		return nil, fmt.Errorf("cannot read field %s of nil", name)
	}

	v := reflect.ValueOf(x)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, fmt.Errorf("cannot read field %s of nil", name)
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: field access on %s", ErrUnsupported, v.Type())
		}
		mv := v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key()))
		if !mv.IsValid() {
			return nil, nil
		}
		return normalize(mv.Interface()), nil
	case reflect.Struct:
		sf, ok := v.Type().FieldByName(name)
		if !ok || !sf.IsExported() {
			return nil, nil
		}
		return normalize(v.FieldByIndex(sf.Index).Interface()), nil
	case reflect.Slice, reflect.Array:
		if name == "length" {
			return float64(v.Len()), nil
		}
	case reflect.String:
		if name == "length" {
			return float64(len([]rune(v.String()))), nil
		}
	}

	return nil, nil
}

func index(x, idx any) (any, error) {
	if x == nil {
		return nil, fmt.Errorf("cannot index nil")
	}

	v := reflect.ValueOf(x)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, fmt.Errorf("cannot index nil")
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: index on %s", ErrUnsupported, v.Type())
		}
		mv := v.MapIndex(reflect.ValueOf(stringify(idx)).Convert(v.Type().Key()))
		if !mv.IsValid() {
			return nil, nil
		}
		return normalize(mv.Interface()), nil
	case reflect.Slice, reflect.Array, reflect.String:
		f, ok := idx.(float64)
		if !ok || f != math.Trunc(f) {
			return nil, nil
		}
		i := int(f)
		if v.Kind() == reflect.String {
			runes := []rune(v.String())
			if i < 0 || i >= len(runes) {
				return nil, nil
			}
			return string(runes[i]), nil
		}
		if i < 0 || i >= v.Len() {
			return nil, nil
		}
		return normalize(v.Index(i).Interface()), nil
	}

	return nil, fmt.Errorf("%w: index on %s", ErrUnsupported, v.Type())
}
