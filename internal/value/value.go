// Package value implements the runtime Value representation consumed
// by the virtual machine: a tagged union of None, Bool, Num, Str,
// List, Map, AgentHandle, Error and Iterator variants.
//
// The donor VM this package is grounded on (sentra's
// internal/vmregister/value.go) represents every value as a NaN-boxed
// uint64 with unsafe pointer casts into a garbage-collected object
// heap, for raw dispatch speed. That representation is not carried
// over here: without ever compiling or executing this code, a bit-
// packing mistake in an unsafe.Pointer cast would be undetectable.
// Instead Value is a small tagged struct, and List/Map/Iterator use
// the same "shared mutable handle" idiom the donor uses for its heap
// objects (a pointer to a boxed struct, so cloning a Value is cheap
// and all clones observe the same mutation) without needing unsafe.
package value

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"golang.org/x/exp/maps"
)

// Kind tags which variant a Value holds.
type Kind uint8

const (
	KindNone Kind = iota
	KindBool
	KindNum
	KindStr
	KindList
	KindMap
	KindAgent
	KindError
	KindIterator
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindBool:
		return "bool"
	case KindNum:
		return "num"
	case KindStr:
		return "str"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindAgent:
		return "agent"
	case KindError:
		return "error"
	case KindIterator:
		return "iterator"
	default:
		return "unknown"
	}
}

// Value is the runtime representation threaded through every register.
type Value struct {
	kind Kind
	num  float64
	str  string
	ref  interface{} // *ListObj, *MapObj, *IteratorObj, or nil
}

// ListObj is the shared mutable backing store for a List value. Every
// Value clone holding the same *ListObj observes the same mutations —
// the VM never copies container storage (spec §5).
type ListObj struct {
	Items []Value
}

// MapObj is the shared mutable backing store for a Map value, keyed by
// string per spec §3.
type MapObj struct {
	Entries map[string]Value
}

// IteratorObj holds a snapshot sequence plus a cursor. IterInit
// snapshots the source at creation time; later mutation of the source
// container is not observed by the walk (spec §9 "Iterator snapshot").
type IteratorObj struct {
	Items  []Value
	Cursor int
}

func None() Value              { return Value{kind: KindNone} }
func Bool(b bool) Value        { return Value{kind: KindBool, num: boolToFloat(b)} }
func Num(n float64) Value      { return Value{kind: KindNum, num: n} }
func Str(s string) Value       { return Value{kind: KindStr, str: s} }
func AgentHandle(id uint64) Value {
	return Value{kind: KindAgent, num: math.Float64frombits(id)}
}
func ErrorValue(msg string) Value { return Value{kind: KindError, str: msg} }

func List(l *ListObj) Value { return Value{kind: KindList, ref: l} }
func Map(m *MapObj) Value   { return Value{kind: KindMap, ref: m} }
func Iterator(it *IteratorObj) Value { return Value{kind: KindIterator, ref: it} }

// NewList allocates a fresh shared ListObj holding a copy of the given
// items (the caller's slice is not retained, so registers it was read
// from can be reused freely).
func NewList(items []Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return List(&ListObj{Items: cp})
}

// NewMap allocates a fresh shared, empty MapObj.
func NewMap() Value {
	return Map(&MapObj{Entries: make(map[string]Value)})
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNone() bool { return v.kind == KindNone }
func (v Value) IsBool() bool { return v.kind == KindBool }
func (v Value) IsNum() bool  { return v.kind == KindNum }
func (v Value) IsStr() bool  { return v.kind == KindStr }
func (v Value) IsList() bool { return v.kind == KindList }
func (v Value) IsMap() bool  { return v.kind == KindMap }
func (v Value) IsAgent() bool { return v.kind == KindAgent }
func (v Value) IsError() bool { return v.kind == KindError }
func (v Value) IsIterator() bool { return v.kind == KindIterator }

func (v Value) AsBool() bool    { return v.num != 0 }
func (v Value) AsNum() float64  { return v.num }
func (v Value) AsStr() string   { return v.str }
func (v Value) AsAgentHandle() uint64 { return math.Float64bits(v.num) }
func (v Value) AsList() *ListObj { return v.ref.(*ListObj) }
func (v Value) AsMap() *MapObj   { return v.ref.(*MapObj) }
func (v Value) AsIterator() *IteratorObj { return v.ref.(*IteratorObj) }

// IsTruthy implements Agentus truthiness for And/Or/JmpTrue/JmpFalse:
// None and false-Bool are falsy, everything else (including 0 and "")
// is truthy — scripting-language truthiness is about the variant, not
// the payload, except for Bool itself.
func IsTruthy(v Value) bool {
	switch v.kind {
	case KindNone:
		return false
	case KindBool:
		return v.AsBool()
	default:
		return true
	}
}

// Equal implements structural Eq/Neq: only like-typed scalars compare
// true; every cross-type or container comparison is false (spec §4.4).
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNone:
		return true
	case KindBool:
		return a.AsBool() == b.AsBool()
	case KindNum:
		return a.num == b.num
	case KindStr:
		return a.str == b.str
	default:
		return false
	}
}

// Display renders a Value's stringified form, used by Concat and by
// TCall argument marshalling (spec: "stringify each value").
func Display(v Value) string {
	switch v.kind {
	case KindNone:
		return "none"
	case KindBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case KindNum:
		return formatNum(v.num)
	case KindStr:
		return v.str
	case KindList:
		items := v.AsList().Items
		parts := make([]string, len(items))
		for i, it := range items {
			parts[i] = Display(it)
		}
		return "[" + joinComma(parts) + "]"
	case KindMap:
		keys := SortedMapKeys(v.AsMap())
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + Display(v.AsMap().Entries[k])
		}
		return "{" + joinComma(parts) + "}"
	case KindAgent:
		return fmt.Sprintf("agent#%d", v.AsAgentHandle())
	case KindError:
		return v.str
	case KindIterator:
		return "<iterator>"
	default:
		return ""
	}
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

func formatNum(n float64) string {
	if n == math.Trunc(n) && !math.IsInf(n, 0) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// SortedMapKeys returns a deterministic, lexically sorted snapshot of a
// MapObj's keys — used both for Display and by IterInit, so that
// iteration order over a Map is stable across runs (spec does not
// mandate an order beyond "a snapshot of keys"; a deterministic one is
// chosen and documented in DESIGN.md).
func SortedMapKeys(m *MapObj) []string {
	keys := maps.Keys(m.Entries)
	sort.Strings(keys)
	return keys
}

// BitsEqual compares two Num values by exact bit pattern, the same
// equality module.Builder.AddNumConstant applies (via math.Float64bits)
// when deduplicating the constant pool (spec §9 open question: recommended
// bit-pattern equality so 0.0 and -0.0 intern separately and NaN only
// dedups against a bit-identical NaN).
func BitsEqual(a, b float64) bool {
	return math.Float64bits(a) == math.Float64bits(b)
}
