// Package labgob wraps encoding/gob with the two diagnostics the original
// lab's codec carries: a warning, issued once per type, when a type's name
// or one of its struct fields' names starts with a lowercase letter (such
// a field is invisible to gob — it would silently vanish across an RPC or
// a snapshot), and a one-time
// warning when decoding into a value that already holds a non-default
// value (a common bug source: reusing a reply struct across retries).
//
// gob itself already refuses to transmit unexported fields; the checks
// here exist to surface that as a loud warning instead of a silent drop,
// matching original_source/labgob/labgob.py's check_type/check_default.
package labgob

import (
	"encoding/gob"
	"io"
	"reflect"
	"sync"
	"unicode"

	"github.com/tamu-distsys-cloud/kvstore/internal/logx"
)

var log = logx.Named("labgob")

var (
	mu      sync.Mutex
	checked = map[reflect.Type]bool{}

	defaultMu     sync.Mutex
	defaultWarned bool
)

// Encoder mirrors gob.Encoder, validating the encoded value's type name on
// the way out.
type Encoder struct {
	enc *gob.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: gob.NewEncoder(w)}
}

func (e *Encoder) Encode(v interface{}) error {
	checkValue(v)
	return e.enc.Encode(v)
}

// Decoder mirrors gob.Decoder, validating both the type name and that the
// decode target held a default (zero) value beforehand.
type Decoder struct {
	dec *gob.Decoder
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: gob.NewDecoder(r)}
}

func (d *Decoder) Decode(v interface{}) error {
	checkValue(v)
	checkDefault(v) // must run before Decode overwrites v's fields
	return d.dec.Decode(v)
}

// Register forwards to gob.Register, the mechanism by which a handler's
// polymorphic payload (e.g. an RPC argument type discovered via the
// service registry) becomes transmittable.
func Register(value interface{}) {
	checkValue(value)
	gob.Register(value)
}

func checkValue(v interface{}) {
	checkType(reflect.TypeOf(v))
}

func checkType(t reflect.Type) {
	mu.Lock()
	defer mu.Unlock()

	for t != nil && (t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice || t.Kind() == reflect.Map) {
		t = t.Elem()
	}
	if t == nil {
		return
	}
	if checked[t] {
		return
	}
	checked[t] = true

	name := t.Name()
	if name == "" {
		return
	}
	r := []rune(name)[0]
	if !unicode.IsUpper(r) {
		log.Warn().Str("type", name).Msg("type name starts with a lower-case letter")
	}
	if t.Kind() == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !unicode.IsUpper([]rune(f.Name)[0]) {
				log.Warn().Str("type", name).Str("field", f.Name).Msg("lower-case field name will be invisible to gob and break RPC/snapshot round-trips")
			}
		}
	}
}

// checkDefault warns, once per process, when v (a freshly decoded value)
// already held non-zero data before the decode — a sign the caller reused
// a reply struct across calls instead of allocating a fresh one.
func checkDefault(v interface{}) {
	rv := reflect.ValueOf(v)
	checkDefaultValue(rv, 1, "")
}

func checkDefaultValue(v reflect.Value, depth int, name string) {
	if depth > 3 {
		return
	}
	if !v.IsValid() {
		return
	}
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return
		}
		checkDefaultValue(v.Elem(), depth+1, name)
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			f := t.Field(i)
			if f.PkgPath != "" { // unexported
				continue
			}
			sub := f.Name
			if name != "" {
				sub = name + "." + f.Name
			}
			checkDefaultValue(v.Field(i), depth+1, sub)
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			sub := name
			checkDefaultValue(iter.Value(), depth+1, sub)
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			checkDefaultValue(v.Index(i), depth+1, name)
		}
	default:
		if v.CanInterface() && !isZero(v) {
			warnDefault(name)
		}
	}
}

func isZero(v reflect.Value) bool {
	return v.Interface() == reflect.Zero(v.Type()).Interface()
}

func warnDefault(name string) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	alreadyWarned := defaultWarned
	defaultWarned = true
	if !alreadyWarned {
		what := name
		if what == "" {
			what = "<value>"
		}
		log.Warn().Str("field", what).Msg("decoding into a non-default field may not work as expected")
	}
}
