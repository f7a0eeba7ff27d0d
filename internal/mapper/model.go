package mapper

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Model is implemented by every persisted struct.
type Model interface {
	TableName() string
	PrimaryKey() []string
}

const (
	colCreatedAt = "created_at"
	colUpdatedAt = "updated_at"
)

type fieldInfo struct {
	column string
	index  []int
	always bool
}

type modelInfo struct {
	fields   []*fieldInfo
	byColumn map[string]*fieldInfo
}

var infoCache sync.Map // reflect.Type -> *modelInfo

func infoFor(t reflect.Type) *modelInfo {
	if cached, ok := infoCache.Load(t); ok {
		return cached.(*modelInfo)
	}
	info := &modelInfo{byColumn: make(map[string]*fieldInfo)}
	for _, sf := range reflect.VisibleFields(t) {
		if sf.Anonymous || !sf.IsExported() {
			continue
		}
		tag, ok := sf.Tag.Lookup("db")
		if !ok || tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		// Shadowed promoted fields are not visible, so first wins.
		if _, dup := info.byColumn[name]; dup {
			continue
		}
		fi := &fieldInfo{column: name, index: sf.Index, always: opts == "always"}
		info.fields = append(info.fields, fi)
		info.byColumn[name] = fi
	}
	actual, _ := infoCache.LoadOrStore(t, info)
	return actual.(*modelInfo)
}

// structValue returns the addressable struct behind a model pointer.
func structValue(v any) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return reflect.Value{}, fmt.Errorf("%w: expected non-nil pointer, got %T", ErrInvalidModel, v)
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: expected pointer to struct, got %T", ErrInvalidModel, v)
	}
	return rv, nil
}

func (fi *fieldInfo) value(rv reflect.Value) reflect.Value {
	return rv.FieldByIndex(fi.index)
}

func (fi *fieldInfo) isSet(rv reflect.Value) bool {
	return fi.always || !fi.value(rv).IsZero()
}

// Columns lists the mapped column names of a model type, in field order.
func Columns(m Model) []string {
	t := reflect.TypeOf(m)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	info := infoFor(t)
	cols := make([]string, len(info.fields))
	for i, f := range info.fields {
		cols[i] = f.column
	}
	return cols
}
