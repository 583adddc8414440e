package operator

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Config is a step's configuration document. It is stored as a cty value so
// HCL expressions and JSON/YAML documents share one representation.
type Config struct {
	value cty.Value
}

// NewConfig wraps a cty value. Null values become an empty object.
func NewConfig(v cty.Value) Config {
	if v.IsNull() {
		v = cty.EmptyObjectVal
	}
	return Config{value: v}
}

// ConfigFromMap converts a JSON-like document into a Config.
func ConfigFromMap(m map[string]any) (Config, error) {
	if len(m) == 0 {
		return NewConfig(cty.EmptyObjectVal), nil
	}
	buf, err := json.Marshal(m)
	if err != nil {
		return Config{}, fmt.Errorf("encode config: %w", err)
	}
	ty, err := ctyjson.ImpliedType(buf)
	if err != nil {
		return Config{}, fmt.Errorf("infer config type: %w", err)
	}
	v, err := ctyjson.Unmarshal(buf, ty)
	if err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return NewConfig(v), nil
}

// MustConfig is ConfigFromMap for literals in tests and built-in pipelines.
func MustConfig(m map[string]any) Config {
	c, err := ConfigFromMap(m)
	if err != nil {
		panic(err)
	}
	return c
}

// Value returns the underlying cty value.
func (c Config) Value() cty.Value {
	if c.value.IsNull() {
		return cty.EmptyObjectVal
	}
	return c.value
}

// Canonical returns a deterministic JSON encoding; object attributes are
// emitted in sorted order.
func (c Config) Canonical() ([]byte, error) {
	v := c.Value()
	if !v.IsWhollyKnown() {
		return nil, errors.New("config contains unknown values")
	}
	return ctyjson.Marshal(v, v.Type())
}

// Native converts the config to plain Go values.
func (c Config) Native() (map[string]any, error) {
	n, err := ctyToNative(c.Value())
	if err != nil {
		return nil, err
	}
	m, ok := n.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("config must be an object, got %s", c.Value().Type().FriendlyName())
	}
	return m, nil
}

// Decode populates target, a pointer to a struct whose fields carry
// `cty:"name"` tags. A ",required" option makes the attribute mandatory.
// Every problem is reported: the returned error joins one *ConfigError per
// offending field.
func (c Config) Decode(target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("decode target must be a pointer to a struct, got %T", target)
	}
	v := c.Value()
	if !v.Type().IsObjectType() && !v.Type().IsMapType() {
		return &ConfigError{Err: fmt.Errorf("config must be an object, got %s", v.Type().FriendlyName())}
	}
	return errors.Join(decodeStruct(v, rv.Elem(), "")...)
}

func decodeStruct(val cty.Value, target reflect.Value, prefix string) []error {
	var errs []error
	var attrs map[string]cty.Value
	if !val.IsNull() {
		attrs = val.AsValueMap()
	}
	known := make(map[string]struct{})
	goType := target.Type()

	for i := 0; i < goType.NumField(); i++ {
		fieldDef := goType.Field(i)
		if !fieldDef.IsExported() {
			continue
		}
		tag := strings.Split(fieldDef.Tag.Get("cty"), ",")
		name := tag[0]
		if name == "" || name == "-" {
			continue
		}
		known[name] = struct{}{}
		field := joinField(prefix, name)

		attr, ok := attrs[name]
		if !ok || attr.IsNull() {
			if hasOption(tag[1:], "required") {
				errs = append(errs, &ConfigError{Field: field, Err: errors.New("required attribute is missing")})
			}
			continue
		}
		errs = append(errs, decodeValue(attr, target.Field(i), field)...)
	}

	unknown := make([]string, 0)
	for name := range attrs {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		errs = append(errs, &ConfigError{Field: joinField(prefix, name), Err: errors.New("unsupported attribute")})
	}
	return errs
}

func decodeValue(val cty.Value, target reflect.Value, field string) []error {
	if !val.IsWhollyKnown() {
		return []error{&ConfigError{Field: field, Err: errors.New("value must be known")}}
	}
	if target.Type() == reflect.TypeOf(cty.Value{}) {
		target.Set(reflect.ValueOf(val))
		return nil
	}

	switch target.Kind() {
	case reflect.Pointer:
		elem := reflect.New(target.Type().Elem())
		if errs := decodeValue(val, elem.Elem(), field); len(errs) > 0 {
			return errs
		}
		target.Set(elem)
		return nil

	case reflect.Interface:
		native, err := ctyToNative(val)
		if err != nil {
			return []error{&ConfigError{Field: field, Err: err}}
		}
		if native != nil {
			target.Set(reflect.ValueOf(native))
		}
		return nil

	case reflect.Struct:
		if !val.Type().IsObjectType() && !val.Type().IsMapType() {
			return []error{&ConfigError{Field: field, Err: fmt.Errorf("expected an object, got %s", val.Type().FriendlyName())}}
		}
		return decodeStruct(val, target, field)

	case reflect.Map:
		if !val.Type().IsObjectType() && !val.Type().IsMapType() {
			return []error{&ConfigError{Field: field, Err: fmt.Errorf("expected an object, got %s", val.Type().FriendlyName())}}
		}
		if target.Type().Key().Kind() != reflect.String {
			return []error{&ConfigError{Field: field, Err: fmt.Errorf("unsupported map key type %s", target.Type().Key())}}
		}
		var errs []error
		m := reflect.MakeMap(target.Type())
		for it := val.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			elem := reflect.New(target.Type().Elem()).Elem()
			if e := decodeValue(ev, elem, field+"."+k.AsString()); len(e) > 0 {
				errs = append(errs, e...)
				continue
			}
			m.SetMapIndex(reflect.ValueOf(k.AsString()).Convert(target.Type().Key()), elem)
		}
		if len(errs) > 0 {
			return errs
		}
		target.Set(m)
		return nil

	case reflect.Slice:
		ty := val.Type()
		if !ty.IsListType() && !ty.IsTupleType() && !ty.IsSetType() {
			return []error{&ConfigError{Field: field, Err: fmt.Errorf("expected a list, got %s", ty.FriendlyName())}}
		}
		var errs []error
		s := reflect.MakeSlice(target.Type(), val.LengthInt(), val.LengthInt())
		i := 0
		for it := val.ElementIterator(); it.Next(); i++ {
			_, ev := it.Element()
			errs = append(errs, decodeValue(ev, s.Index(i), fmt.Sprintf("%s[%d]", field, i))...)
		}
		if len(errs) > 0 {
			return errs
		}
		target.Set(s)
		return nil

	default:
		wantType, err := gocty.ImpliedType(reflect.Zero(target.Type()).Interface())
		if err != nil {
			return []error{&ConfigError{Field: field, Err: err}}
		}
		converted, err := convert.Convert(val, wantType)
		if err != nil {
			return []error{&ConfigError{Field: field, Err: fmt.Errorf("expected %s, got %s", wantType.FriendlyName(), val.Type().FriendlyName())}}
		}
		if err := gocty.FromCtyValue(converted, target.Addr().Interface()); err != nil {
			return []error{&ConfigError{Field: field, Err: err}}
		}
		return nil
	}
}

// ctyToNative recursively converts a cty.Value to its most natural Go counterpart.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		slice := make([]any, 0)
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			slice = append(slice, native)
		}
		return slice, nil

	case ty.IsObjectType() || ty.IsMapType():
		m := make(map[string]any)
		for it := v.ElementIterator(); it.Next(); {
			key, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute '%s': %w", key.AsString(), err)
			}
			m[key.AsString()] = native
		}
		return m, nil

	default:
		return nil, fmt.Errorf("unsupported cty type: %s", ty.FriendlyName())
	}
}

func joinField(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func hasOption(opts []string, want string) bool {
	for _, o := range opts {
		if strings.TrimSpace(o) == want {
			return true
		}
	}
	return false
}
