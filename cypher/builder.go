package cypher

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/schema"
)

var simpleName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Escape quotes a label, type or property name with backticks unless it is a
// plain identifier.
func Escape(name string) string {
	if simpleName.MatchString(name) {
		return name
	}
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Param renders a parameter reference.
func Param(name string) string { return "$" + name }

// Property renders alias.name.
func Property(alias, name string) string { return alias + "." + Escape(name) }

// Pattern is any renderable graph pattern.
type Pattern interface {
	String() string
}

// NodePattern renders (alias:Label1:Label2 {props}).
type NodePattern struct {
	alias  string
	labels []string
	props  string
}

// Node returns a node pattern with the given labels.
func Node(alias string, labels ...string) NodePattern {
	return NodePattern{alias: alias, labels: labels}
}

// WithProperties attaches a raw property map literal such as {id: $id}.
func (n NodePattern) WithProperties(literal string) NodePattern {
	n.props = literal
	return n
}

func (n NodePattern) String() string {
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(n.alias)
	for _, l := range n.labels {
		b.WriteString(":")
		b.WriteString(Escape(l))
	}
	if n.props != "" {
		b.WriteString(" ")
		b.WriteString(n.props)
	}
	b.WriteString(")")
	return b.String()
}

// RelationshipPattern renders (from)-[alias:TYPE]->(to).
type RelationshipPattern struct {
	from       NodePattern
	to         NodePattern
	alias      string
	types      []string
	direction  schema.Direction
	undirected bool
	unbounded  bool
}

// Related connects from and to with a relationship walked in direction.
func Related(from NodePattern, direction schema.Direction, alias string, types []string, to NodePattern) RelationshipPattern {
	return RelationshipPattern{from: from, to: to, alias: alias, types: types, direction: direction}
}

// Between connects from and to regardless of direction.
func Between(from NodePattern, alias string, types []string, to NodePattern) RelationshipPattern {
	return RelationshipPattern{from: from, to: to, alias: alias, types: types, undirected: true}
}

// Unbounded makes the relationship variable length.
func (r RelationshipPattern) Unbounded() RelationshipPattern {
	r.unbounded = true
	return r
}

func (r RelationshipPattern) String() string {
	var detail strings.Builder
	detail.WriteString(r.alias)
	for i, t := range r.types {
		if i == 0 {
			detail.WriteString(":")
		} else {
			detail.WriteString("|")
		}
		detail.WriteString(Escape(t))
	}
	if r.unbounded {
		detail.WriteString("*")
	}
	body := ""
	if detail.Len() > 0 {
		body = "[" + detail.String() + "]"
	}
	switch {
	case r.undirected:
		return r.from.String() + "-" + body + "-" + r.to.String()
	case r.direction == schema.Incoming:
		return r.from.String() + "<-" + body + "-" + r.to.String()
	default:
		return r.from.String() + "-" + body + "->" + r.to.String()
	}
}

// NamedPath renders name=pattern.
type NamedPath struct {
	Name    string
	Pattern Pattern
}

func (p NamedPath) String() string { return p.Name + "=" + p.Pattern.String() }

// Statement accumulates clauses of one query part. Methods append in call
// order; Build joins them.
type Statement struct {
	clauses []string
}

// Match starts a statement with MATCH.
func Match(patterns ...Pattern) *Statement {
	return (&Statement{}).Match(patterns...)
}

// OptionalMatch starts a statement with OPTIONAL MATCH.
func OptionalMatch(patterns ...Pattern) *Statement {
	return (&Statement{}).OptionalMatch(patterns...)
}

// Unwind starts a statement with UNWIND.
func Unwind(expression, alias string) *Statement {
	return (&Statement{}).Unwind(expression, alias)
}

func (s *Statement) add(keyword string, items []string, sep string) *Statement {
	s.clauses = append(s.clauses, keyword+" "+strings.Join(items, sep))
	return s
}

func patternsOf(patterns []Pattern) []string {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = p.String()
	}
	return out
}

func (s *Statement) Match(patterns ...Pattern) *Statement {
	return s.add("MATCH", patternsOf(patterns), ", ")
}

func (s *Statement) OptionalMatch(patterns ...Pattern) *Statement {
	return s.add("OPTIONAL MATCH", patternsOf(patterns), ", ")
}

func (s *Statement) Create(patterns ...Pattern) *Statement {
	return s.add("CREATE", patternsOf(patterns), ", ")
}

func (s *Statement) Merge(patterns ...Pattern) *Statement {
	return s.add("MERGE", patternsOf(patterns), ", ")
}

// Where appends a WHERE clause. A nil condition appends nothing.
func (s *Statement) Where(c Condition) *Statement {
	if c == nil {
		return s
	}
	s.clauses = append(s.clauses, "WHERE "+c.cypher())
	return s
}

func (s *Statement) With(items ...string) *Statement { return s.add("WITH", items, ", ") }

func (s *Statement) Unwind(expression, alias string) *Statement {
	s.clauses = append(s.clauses, fmt.Sprintf("UNWIND %s AS %s", expression, alias))
	return s
}

// Set appends SET with assignments such as "n += $props".
func (s *Statement) Set(assignments ...string) *Statement {
	if len(assignments) == 0 {
		return s
	}
	return s.add("SET", assignments, ", ")
}

// SetLabels appends SET alias:L1:L2. No labels append nothing.
func (s *Statement) SetLabels(alias string, labels ...string) *Statement {
	if len(labels) == 0 {
		return s
	}
	s.clauses = append(s.clauses, "SET "+labelExpression(alias, labels))
	return s
}

// RemoveLabels appends REMOVE alias:L1:L2. No labels append nothing.
func (s *Statement) RemoveLabels(alias string, labels ...string) *Statement {
	if len(labels) == 0 {
		return s
	}
	s.clauses = append(s.clauses, "REMOVE "+labelExpression(alias, labels))
	return s
}

func labelExpression(alias string, labels []string) string {
	var b strings.Builder
	b.WriteString(alias)
	for _, l := range labels {
		b.WriteString(":")
		b.WriteString(Escape(l))
	}
	return b.String()
}

func (s *Statement) Delete(aliases ...string) *Statement { return s.add("DELETE", aliases, ", ") }

func (s *Statement) DetachDelete(aliases ...string) *Statement {
	return s.add("DETACH DELETE", aliases, ", ")
}

func (s *Statement) Return(items ...string) *Statement { return s.add("RETURN", items, ", ") }

func (s *Statement) OrderBy(items ...string) *Statement { return s.add("ORDER BY", items, ", ") }

func (s *Statement) Skip(expression string) *Statement {
	s.clauses = append(s.clauses, "SKIP "+expression)
	return s
}

func (s *Statement) Limit(expression string) *Statement {
	s.clauses = append(s.clauses, "LIMIT "+expression)
	return s
}

// Build renders the statement.
func (s *Statement) Build() string { return strings.Join(s.clauses, " ") }

func (s *Statement) String() string { return s.Build() }

// Union combines complete query parts with UNION.
func Union(parts ...*Statement) string {
	rendered := make([]string, len(parts))
	for i, p := range parts {
		rendered[i] = p.Build()
	}
	return strings.Join(rendered, " UNION ")
}
