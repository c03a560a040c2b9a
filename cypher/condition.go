package cypher

import (
	"strings"
)

// Condition is a node of a WHERE predicate tree.
type Condition interface {
	cypher() string
}

type comparison struct {
	left, op, right string
}

func (c comparison) cypher() string { return c.left + " " + c.op + " " + c.right }

type unary struct {
	expression, suffix string
}

func (u unary) cypher() string { return u.expression + " " + u.suffix }

type negation struct{ inner Condition }

func (n negation) cypher() string { return "NOT " + wrap(n.inner) }

type junction struct {
	op    string
	parts []Condition
}

func (j junction) cypher() string {
	rendered := make([]string, len(j.parts))
	for i, p := range j.parts {
		rendered[i] = wrap(p)
	}
	return strings.Join(rendered, " "+j.op+" ")
}

type raw string

func (r raw) cypher() string { return string(r) }

func wrap(c Condition) string {
	if _, ok := c.(junction); ok {
		return "(" + c.cypher() + ")"
	}
	return c.cypher()
}

// Eq renders left = right.
func Eq(left, right string) Condition { return comparison{left, "=", right} }

// Ne renders left <> right.
func Ne(left, right string) Condition { return comparison{left, "<>", right} }

// Gt renders left > right.
func Gt(left, right string) Condition { return comparison{left, ">", right} }

// Lt renders left < right.
func Lt(left, right string) Condition { return comparison{left, "<", right} }

// In renders left IN right.
func In(left, right string) Condition { return comparison{left, "IN", right} }

func IsNull(expression string) Condition    { return unary{expression, "IS NULL"} }
func IsNotNull(expression string) Condition { return unary{expression, "IS NOT NULL"} }

// Not negates c.
func Not(c Condition) Condition { return negation{c} }

// And joins the non-nil conditions. It returns nil when all are nil.
func And(conditions ...Condition) Condition { return join("AND", conditions) }

// Or joins the non-nil conditions. It returns nil when all are nil.
func Or(conditions ...Condition) Condition { return join("OR", conditions) }

// Raw wraps a predicate written by hand.
func Raw(predicate string) Condition { return raw(predicate) }

func join(op string, conditions []Condition) Condition {
	var parts []Condition
	for _, c := range conditions {
		if c != nil {
			parts = append(parts, c)
		}
	}
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0]
	}
	return junction{op: op, parts: parts}
}

// Render returns the predicate text of c, or the empty string for nil.
func Render(c Condition) string {
	if c == nil {
		return ""
	}
	return c.cypher()
}
