// Package query compiles structured filters into parameterized SQL predicates.
package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	core "github.com/crmkit/crm_services/internal/core_domain"
	"github.com/crmkit/crm_services/internal/user_stats_service/domain"
)

const trueClause = "TRUE"

// Predicate is a WHERE clause with $n placeholders and the values to bind.
// Placeholders are numbered from 1.
type Predicate struct {
	Where string
	Args  []any
}

// NextPlaceholder is the number the next bound argument should use.
func (p Predicate) NextPlaceholder() int { return len(p.Args) + 1 }

// Compile turns f into a conjunction of clauses. Field names are checked
// against schema and only ever appear in the output as allow-listed
// identifiers; all values are bound.
func Compile(f core.StructuredFilter, schema domain.Schema) (Predicate, error) {
	b := &builder{}

	for _, field := range sortedKeys(f.Timestamps) {
		if !schema.TimeFields[field] {
			return Predicate{}, fmt.Errorf("%w: %w: timestamp field %q", domain.ErrCompilation, domain.ErrUnknownField, field)
		}
		b.timeClause(field, f.Timestamps[field])
	}

	for _, field := range sortedKeys(f.IDs) {
		if !schema.IDFields[field] {
			return Predicate{}, fmt.Errorf("%w: %w: id field %q", domain.ErrCompilation, domain.ErrUnknownField, field)
		}
		b.idClause(field, f.IDs[field].IDs)
	}

	return b.predicate(), nil
}

type builder struct {
	clauses []string
	args    []any
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *builder) timeClause(field string, r core.TimeRange) {
	switch {
	case r.IsUnbounded():
		b.clauses = append(b.clauses, trueClause)
	case r.Upper == nil:
		b.clauses = append(b.clauses, field+" >= "+b.bind(r.Lower.UTC()))
	case r.Lower == nil:
		b.clauses = append(b.clauses, field+" <= "+b.bind(r.Upper.UTC()))
	default:
		lower := b.bind(r.Lower.UTC())
		upper := b.bind(r.Upper.UTC())
		b.clauses = append(b.clauses, field+" BETWEEN "+lower+" AND "+upper)
	}
}

// idClause matches rows whose column contains every requested id.
func (b *builder) idClause(field string, ids []uint32) {
	if len(ids) == 0 {
		b.clauses = append(b.clauses, trueClause)
		return
	}
	vals := make([]int64, len(ids))
	for i, id := range ids {
		vals[i] = int64(id)
	}
	b.clauses = append(b.clauses, b.bind(vals)+"::integer[] <@ "+field)
}

func (b *builder) predicate() Predicate {
	where := trueClause
	if len(b.clauses) > 0 {
		where = strings.Join(b.clauses, " AND ")
	}
	return Predicate{Where: where, Args: b.args}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
