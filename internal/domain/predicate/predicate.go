package predicate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MaxClauses bounds the number of clauses in one predicate.
const MaxClauses = 32

// EmptyListMarker is stored in place of an empty list attribute so backends
// can evaluate ContainsOrEmpty as a plain tag intersection.
const EmptyListMarker = "__any__"

// Operator is a clause comparison.
type Operator string

const (
	// Equal matches when the attribute equals the single value.
	Equal Operator = "eq"
	// ContainsOrEmpty matches when the attribute list intersects the values
	// or the attribute list is empty.
	ContainsOrEmpty Operator = "contains_or_empty"
	// GreaterThanOrEqual matches numeric attributes >= value.
	GreaterThanOrEqual Operator = "gte"
	// LessThanOrEqual matches numeric attributes <= value.
	LessThanOrEqual Operator = "lte"
)

// IsValid reports whether the operator is known.
func (o Operator) IsValid() bool {
	switch o {
	case Equal, ContainsOrEmpty, GreaterThanOrEqual, LessThanOrEqual:
		return true
	}
	return false
}

// IsNumeric reports whether the operator compares numbers.
func (o Operator) IsNumeric() bool {
	return o == GreaterThanOrEqual || o == LessThanOrEqual
}

// Clause is a single field/operator/value triple.
type Clause struct {
	field  string
	op     Operator
	values []string
	number float64
}

// NewEqual creates an exact match clause.
func NewEqual(field, value string) (Clause, error) {
	if field == "" {
		return Clause{}, fmt.Errorf("predicate field is required")
	}
	if value == "" {
		return Clause{}, fmt.Errorf("value is required for field %q", field)
	}
	return Clause{field: field, op: Equal, values: []string{value}}, nil
}

// NewContainsOrEmpty creates a list intersection clause. Empty values are dropped;
// a clause with no remaining values matches everything.
func NewContainsOrEmpty(field string, values ...string) (Clause, error) {
	if field == "" {
		return Clause{}, fmt.Errorf("predicate field is required")
	}
	vals := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			vals = append(vals, v)
		}
	}
	return Clause{field: field, op: ContainsOrEmpty, values: vals}, nil
}

// NewRange creates a numeric comparison clause.
func NewRange(field string, op Operator, value float64) (Clause, error) {
	if field == "" {
		return Clause{}, fmt.Errorf("predicate field is required")
	}
	if !op.IsNumeric() {
		return Clause{}, fmt.Errorf("operator %q is not numeric", op)
	}
	return Clause{field: field, op: op, number: value}, nil
}

// Field returns the attribute path.
func (c Clause) Field() string { return c.field }

// Operator returns the comparison.
func (c Clause) Operator() Operator { return c.op }

// Values returns the match values for Equal and ContainsOrEmpty.
func (c Clause) Values() []string { return c.values }

// Number returns the bound for numeric operators.
func (c Clause) Number() float64 { return c.number }

// MatchesAll reports whether the clause cannot exclude anything.
func (c Clause) MatchesAll() bool {
	return c.op == ContainsOrEmpty && len(c.values) == 0
}

func (c Clause) canonical() string {
	if c.op.IsNumeric() {
		return c.field + " " + string(c.op) + " " + strconv.FormatFloat(c.number, 'g', -1, 64)
	}
	vals := append([]string(nil), c.values...)
	sort.Strings(vals)
	return c.field + " " + string(c.op) + " " + strings.Join(vals, "|")
}

// Predicate is a conjunction of clauses.
type Predicate struct {
	clauses []Clause
}

// New validates and creates a Predicate. Clauses that match everything are dropped.
func New(clauses ...Clause) (Predicate, error) {
	kept := make([]Clause, 0, len(clauses))
	for _, c := range clauses {
		if !c.op.IsValid() {
			return Predicate{}, fmt.Errorf("unknown operator %q", c.op)
		}
		if c.MatchesAll() {
			continue
		}
		kept = append(kept, c)
	}
	if len(kept) > MaxClauses {
		return Predicate{}, fmt.Errorf("too many clauses (max %d)", MaxClauses)
	}
	return Predicate{clauses: kept}, nil
}

// Clauses returns the conjunctive clauses.
func (p Predicate) Clauses() []Clause { return p.clauses }

// IsEmpty reports whether the predicate matches every entity.
func (p Predicate) IsEmpty() bool { return len(p.clauses) == 0 }

// Canonical returns an order-independent string form for fingerprinting.
func (p Predicate) Canonical() string {
	parts := make([]string, len(p.clauses))
	for i, c := range p.clauses {
		parts[i] = c.canonical()
	}
	sort.Strings(parts)
	return strings.Join(parts, " & ")
}
