// Package inspect provides the worker-side access wrapper: a reflection
// adapter exposing a closed set of introspection operations on one native
// Go value. Wrappers live only inside the worker; the host reaches them
// through opaque handles.
package inspect

import (
	"fmt"
	"reflect"
	"sort"
)

// Op names the closed set of operations an access wrapper supports. The
// handle proxy on the host side routes every method call through exactly
// one of these.
type Op string

const (
	OpAttrNames     Op = "attr_names"
	OpGetAttr       Op = "get_attr"
	OpHasAttr       Op = "has_attr"
	OpRepr          Op = "repr"
	OpTypeName      Op = "type_name"
	OpLen           Op = "len"
	OpGetItem       Op = "get_item"
	OpSignature     Op = "signature"
	OpIsCallable    Op = "is_callable"
	OpQualifiedPath Op = "qualified_path"
)

// Range is a slice-like index range. Nil endpoints are open.
type Range struct {
	Start *int64
	Stop  *int64
	Step  int64
}

// Param describes one parameter of a callable. Type wraps the parameter's
// reflect.Type so the host can introspect it further through a handle.
type Param struct {
	Name    string
	Kind    string
	Type    *Access
	Default interface{}
}

// Parameter kinds.
const (
	ParamPositional = "positional"
	ParamVariadic   = "variadic"
)

// PathStep is one link of a qualified reference chain.
type PathStep struct {
	Access *Access
	Name   string
}

// AccessPath is an ordered chain of (access, name) pairs describing how a
// value was reached from its root.
type AccessPath struct {
	Steps []PathStep
}

// Access wraps one inspected Go value. One wrapper exists per distinct
// object per session; wrappers for attribute and item lookups record their
// parent so qualified paths can be reconstructed.
type Access struct {
	obj    interface{}
	val    reflect.Value
	name   string
	parent *Access
}

// NewAccess wraps a root value under the given name.
func NewAccess(obj interface{}, name string) *Access {
	return &Access{obj: obj, val: reflect.ValueOf(obj), name: name}
}

func (a *Access) child(obj interface{}, name string) *Access {
	return &Access{obj: obj, val: reflect.ValueOf(obj), name: name, parent: a}
}

// Object returns the wrapped value.
func (a *Access) Object() interface{} { return a.obj }

// Name returns the name this value was reached by.
func (a *Access) Name() string { return a.name }

// Parent returns the wrapper this one was derived from, or nil for roots.
func (a *Access) Parent() *Access { return a.parent }

func (a *Access) String() string {
	return fmt.Sprintf("<Access %s of %s>", a.name, a.typeName())
}

// Invoke runs one introspection operation. Unknown operations and argument
// shape mismatches are reported as errors, never panics.
func (a *Access) Invoke(op Op, args ...interface{}) (interface{}, error) {
	switch op {
	case OpAttrNames:
		return a.attrNames(), nil
	case OpGetAttr:
		name, err := stringArg(op, args)
		if err != nil {
			return nil, err
		}
		return a.getAttr(name)
	case OpHasAttr:
		name, err := stringArg(op, args)
		if err != nil {
			return nil, err
		}
		_, err = a.getAttr(name)
		return err == nil, nil
	case OpRepr:
		return a.repr(), nil
	case OpTypeName:
		return a.typeName(), nil
	case OpLen:
		return a.length()
	case OpGetItem:
		if len(args) != 1 {
			return nil, fmt.Errorf("inspect: %s takes exactly one argument, got %d", op, len(args))
		}
		return a.getItem(args[0])
	case OpSignature:
		return a.signature()
	case OpIsCallable:
		return a.val.IsValid() && a.val.Kind() == reflect.Func, nil
	case OpQualifiedPath:
		return a.qualifiedPath(), nil
	default:
		return nil, fmt.Errorf("inspect: unknown operation %q", op)
	}
}

func stringArg(op Op, args []interface{}) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("inspect: %s takes exactly one argument, got %d", op, len(args))
	}
	s, ok := args[0].(string)
	if !ok {
		return "", fmt.Errorf("inspect: %s wants a string argument, got %T", op, args[0])
	}
	return s, nil
}

// attrNames lists the exported fields and methods of the wrapped value,
// sorted for a stable order on the wire.
func (a *Access) attrNames() []string {
	if !a.val.IsValid() {
		return nil
	}
	seen := map[string]bool{}
	t := a.val.Type()
	for i := 0; i < t.NumMethod(); i++ {
		seen[t.Method(i).Name] = true
	}
	elem := a.val
	for elem.Kind() == reflect.Ptr && !elem.IsNil() {
		elem = elem.Elem()
	}
	if elem.Kind() == reflect.Struct {
		et := elem.Type()
		for i := 0; i < et.NumField(); i++ {
			if et.Field(i).PkgPath == "" {
				seen[et.Field(i).Name] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// getAttr resolves an exported field or method to a child wrapper.
func (a *Access) getAttr(name string) (*Access, error) {
	if !a.val.IsValid() {
		return nil, fmt.Errorf("inspect: nil value has no attribute %q", name)
	}
	if m := a.val.MethodByName(name); m.IsValid() {
		return a.child(m.Interface(), name), nil
	}
	elem := a.val
	for elem.Kind() == reflect.Ptr && !elem.IsNil() {
		elem = elem.Elem()
	}
	if elem.Kind() == reflect.Struct {
		if f := elem.FieldByName(name); f.IsValid() && f.CanInterface() {
			return a.child(f.Interface(), name), nil
		}
	}
	return nil, fmt.Errorf("inspect: %s has no attribute %q", a.typeName(), name)
}

func (a *Access) repr() string {
	if !a.val.IsValid() {
		return "nil"
	}
	switch a.val.Kind() {
	case reflect.String:
		return fmt.Sprintf("%q", a.val.String())
	case reflect.Func:
		return fmt.Sprintf("<func %s>", a.val.Type())
	default:
		return fmt.Sprintf("%v", a.obj)
	}
}

func (a *Access) typeName() string {
	if !a.val.IsValid() {
		return "nil"
	}
	return a.val.Type().String()
}

func (a *Access) length() (int, error) {
	if !a.val.IsValid() {
		return 0, fmt.Errorf("inspect: nil value has no length")
	}
	switch a.val.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String, reflect.Chan:
		return a.val.Len(), nil
	}
	return 0, fmt.Errorf("inspect: %s has no length", a.typeName())
}

// getItem resolves a single index or a range. Index access returns a child
// wrapper; range access returns a sequence of child wrappers.
func (a *Access) getItem(arg interface{}) (interface{}, error) {
	switch idx := arg.(type) {
	case int64:
		return a.itemAt(int(idx))
	case int:
		return a.itemAt(idx)
	case *Range:
		return a.itemRange(idx)
	default:
		return nil, fmt.Errorf("inspect: %s index must be an integer or range, got %T", OpGetItem, arg)
	}
}

func (a *Access) itemAt(i int) (*Access, error) {
	if !a.val.IsValid() {
		return nil, fmt.Errorf("inspect: nil value is not indexable")
	}
	switch a.val.Kind() {
	case reflect.Slice, reflect.Array, reflect.String:
		if i < 0 || i >= a.val.Len() {
			return nil, fmt.Errorf("inspect: index %d out of range for %s of length %d", i, a.typeName(), a.val.Len())
		}
		return a.child(a.val.Index(i).Interface(), fmt.Sprintf("[%d]", i)), nil
	}
	return nil, fmt.Errorf("inspect: %s is not indexable", a.typeName())
}

func (a *Access) itemRange(r *Range) ([]*Access, error) {
	if !a.val.IsValid() {
		return nil, fmt.Errorf("inspect: nil value is not sliceable")
	}
	switch a.val.Kind() {
	case reflect.Slice, reflect.Array, reflect.String:
	default:
		return nil, fmt.Errorf("inspect: %s is not sliceable", a.typeName())
	}
	n := a.val.Len()
	start, stop := 0, n
	if r.Start != nil {
		start = clamp(int(*r.Start), n)
	}
	if r.Stop != nil {
		stop = clamp(int(*r.Stop), n)
	}
	step := 1
	if r.Step != 0 {
		step = int(r.Step)
	}
	if step <= 0 {
		return nil, fmt.Errorf("inspect: range step must be positive, got %d", step)
	}
	var items []*Access
	for i := start; i < stop; i += step {
		items = append(items, a.child(a.val.Index(i).Interface(), fmt.Sprintf("[%d]", i)))
	}
	return items, nil
}

func clamp(i, n int) int {
	if i < 0 {
		i += n
	}
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

// signature extracts the parameter list of a wrapped func. Go reflection
// does not expose parameter names, so positional placeholders are used.
func (a *Access) signature() ([]*Param, error) {
	if !a.val.IsValid() || a.val.Kind() != reflect.Func {
		return nil, fmt.Errorf("inspect: %s is not callable", a.typeName())
	}
	t := a.val.Type()
	params := make([]*Param, 0, t.NumIn())
	for i := 0; i < t.NumIn(); i++ {
		kind := ParamPositional
		if t.IsVariadic() && i == t.NumIn()-1 {
			kind = ParamVariadic
		}
		in := t.In(i)
		params = append(params, &Param{
			Name: fmt.Sprintf("arg%d", i),
			Kind: kind,
			Type: a.child(reflect.New(in).Elem().Interface(), in.String()),
		})
	}
	return params, nil
}

// qualifiedPath walks the parent chain back to the root.
func (a *Access) qualifiedPath() *AccessPath {
	var steps []PathStep
	for cur := a; cur != nil; cur = cur.parent {
		steps = append(steps, PathStep{Access: cur, Name: cur.name})
	}
	// Reverse into root-first order.
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return &AccessPath{Steps: steps}
}
