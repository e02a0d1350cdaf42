// Package predicate implements column predicates that can be checked against
// compression metadata to skip chunks during scans.
package predicate

import (
	"fmt"
	"strings"

	"github.com/hupe1980/graphstore/internal/compression"
	"github.com/hupe1980/graphstore/internal/types"
)

// ColumnPredicate filters the values of one column.
//
// CheckCompressionMetadata must be conservative: it may only return false
// when no value described by the metadata can satisfy the predicate.
type ColumnPredicate interface {
	CheckCompressionMetadata(m compression.Metadata) bool
	Matches(v types.Value) bool
	fmt.Stringer
}

// Op is a comparison operator.
type Op uint8

const (
	Equal Op = iota
	NotEqual
	Less
	LessEqual
	Greater
	GreaterEqual
)

var opNames = [...]string{"=", "<>", "<", "<=", ">", ">="}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// ConstantPredicate compares the column against a constant: column Op Value.
type ConstantPredicate struct {
	Op    Op
	Value types.Value
}

// NewConstant returns column op value.
func NewConstant(op Op, value types.Value) *ConstantPredicate {
	return &ConstantPredicate{Op: op, Value: value}
}

func (p *ConstantPredicate) CheckCompressionMetadata(m compression.Metadata) bool {
	t := p.Value.Type()
	// String chunks carry dictionary bounds, not value bounds.
	if t == types.String || p.Value.IsNull() {
		return true
	}
	v := p.Value.Bits()
	switch p.Op {
	case Equal:
		return types.CompareBits(t, m.Min, v) <= 0 && types.CompareBits(t, v, m.Max) <= 0
	case NotEqual:
		return !(m.IsConstant() && types.CompareBits(t, m.Min, v) == 0)
	case Less:
		return types.CompareBits(t, m.Min, v) < 0
	case LessEqual:
		return types.CompareBits(t, m.Min, v) <= 0
	case Greater:
		return types.CompareBits(t, m.Max, v) > 0
	case GreaterEqual:
		return types.CompareBits(t, m.Max, v) >= 0
	}
	return true
}

func (p *ConstantPredicate) Matches(v types.Value) bool {
	if v.IsNull() || p.Value.IsNull() {
		return false
	}
	c := types.Compare(v, p.Value)
	switch p.Op {
	case Equal:
		return c == 0
	case NotEqual:
		return c != 0
	case Less:
		return c < 0
	case LessEqual:
		return c <= 0
	case Greater:
		return c > 0
	case GreaterEqual:
		return c >= 0
	}
	return false
}

func (p *ConstantPredicate) String() string {
	return fmt.Sprintf("%s %s", p.Op, p.Value)
}

// Set is the conjunction of predicates on a single column.
type Set struct {
	predicates []ColumnPredicate
}

// NewSet returns the conjunction of ps.
func NewSet(ps ...ColumnPredicate) *Set {
	return &Set{predicates: ps}
}

// Add appends a predicate to the conjunction.
func (s *Set) Add(p ColumnPredicate) { s.predicates = append(s.predicates, p) }

// IsEmpty reports whether the set has no predicates.
func (s *Set) IsEmpty() bool { return s == nil || len(s.predicates) == 0 }

func (s *Set) CheckCompressionMetadata(m compression.Metadata) bool {
	if s == nil {
		return true
	}
	for _, p := range s.predicates {
		if !p.CheckCompressionMetadata(m) {
			return false
		}
	}
	return true
}

func (s *Set) Matches(v types.Value) bool {
	if s == nil {
		return true
	}
	for _, p := range s.predicates {
		if !p.Matches(v) {
			return false
		}
	}
	return true
}

func (s *Set) String() string {
	parts := make([]string, len(s.predicates))
	for i, p := range s.predicates {
		parts[i] = p.String()
	}
	return strings.Join(parts, " AND ")
}
