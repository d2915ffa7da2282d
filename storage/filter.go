package storage

import (
	"fmt"
	"strings"
)

type Op int

const (
	OpEqual Op = iota
	OpNotEqual
	OpLess
	OpLessOrEqual
	OpGreater
	OpGreaterOrEqual
	OpIn
	OpHasPrefix
)

var opSymbols = [...]string{
	OpEqual:          "==",
	OpNotEqual:       "!=",
	OpLess:           "<",
	OpLessOrEqual:    "<=",
	OpGreater:        ">",
	OpGreaterOrEqual: ">=",
	OpIn:             "in",
	OpHasPrefix:      "has prefix",
}

func (op Op) String() string {
	if op >= 0 && int(op) < len(opSymbols) {
		return opSymbols[op]
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// Filter is a boolean expression over record attributes. The concrete node
// types are Compare, And, Or and Not.
type Filter interface {
	fmt.Stringer
	isFilter()
}

// Compare tests one attribute against a canonical value. For OpIn, Value is a
// []any of canonical values. Comparing with a nil Value using OpEqual or
// OpNotEqual tests for absence.
type Compare struct {
	Attr  string
	Op    Op
	Value any
}

// And matches when every operand matches; an empty And matches everything.
type And []Filter

// Or matches when any operand matches; an empty Or matches nothing.
type Or []Filter

type Not struct {
	Filter Filter
}

func (Compare) isFilter() {}
func (And) isFilter()     {}
func (Or) isFilter()      {}
func (Not) isFilter()     {}

func (c Compare) String() string {
	if c.Op == OpIn {
		values, _ := c.Value.([]any)
		strs := make([]string, len(values))
		for i, v := range values {
			strs[i] = FormatValue(v)
		}
		return fmt.Sprintf("%s in [%s]", c.Attr, strings.Join(strs, ", "))
	}
	return fmt.Sprintf("%s %s %s", c.Attr, c.Op, FormatValue(c.Value))
}

func (f And) String() string { return joinFilters(f, " && ", "true") }
func (f Or) String() string  { return joinFilters(f, " || ", "false") }
func (f Not) String() string { return "!(" + f.Filter.String() + ")" }

func joinFilters(fs []Filter, sep, empty string) string {
	if len(fs) == 0 {
		return empty
	}
	strs := make([]string, len(fs))
	for i, f := range fs {
		strs[i] = "(" + f.String() + ")"
	}
	return strings.Join(strs, sep)
}

// Match evaluates f against attrs. A nil filter matches. Ordering comparisons
// against a missing or nil attribute never match.
func Match(f Filter, attrs Attributes) bool {
	switch f := f.(type) {
	case nil:
		return true
	case Compare:
		return matchCompare(f, attrs[f.Attr])
	case And:
		for _, sub := range f {
			if !Match(sub, attrs) {
				return false
			}
		}
		return true
	case Or:
		for _, sub := range f {
			if Match(sub, attrs) {
				return true
			}
		}
		return false
	case Not:
		return !Match(f.Filter, attrs)
	default:
		panic(fmt.Errorf("unsupported filter %T", f))
	}
}

func matchCompare(c Compare, v any) bool {
	switch c.Op {
	case OpEqual:
		return EqualValues(v, c.Value)
	case OpNotEqual:
		return !EqualValues(v, c.Value)
	case OpIn:
		values, _ := c.Value.([]any)
		for _, cv := range values {
			if EqualValues(v, cv) {
				return true
			}
		}
		return false
	case OpHasPrefix:
		s, ok := v.(string)
		prefix, _ := c.Value.(string)
		return ok && strings.HasPrefix(s, prefix)
	}

	if v == nil || c.Value == nil || !comparableKinds(KindOf(v), KindOf(c.Value)) {
		return false
	}
	r := CompareValues(v, c.Value)
	switch c.Op {
	case OpLess:
		return r < 0
	case OpLessOrEqual:
		return r <= 0
	case OpGreater:
		return r > 0
	case OpGreaterOrEqual:
		return r >= 0
	default:
		panic(fmt.Errorf("unsupported filter op %v", c.Op))
	}
}

func comparableKinds(a, b Kind) bool {
	return numericKind(a) == numericKind(b)
}

// Attrs returns every attribute name the filter references, in order of first
// appearance.
func Attrs(f Filter) []string {
	var names []string
	seen := make(map[string]bool)
	var walk func(f Filter)
	walk = func(f Filter) {
		switch f := f.(type) {
		case Compare:
			if !seen[f.Attr] {
				seen[f.Attr] = true
				names = append(names, f.Attr)
			}
		case And:
			for _, sub := range f {
				walk(sub)
			}
		case Or:
			for _, sub := range f {
				walk(sub)
			}
		case Not:
			walk(f.Filter)
		}
	}
	walk(f)
	return names
}
