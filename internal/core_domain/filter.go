package core_domain

import "time"

// TimeRange bounds a timestamp column. Both bounds are inclusive; nil means open.
type TimeRange struct {
	Lower *time.Time `json:"lower,omitempty"`
	Upper *time.Time `json:"upper,omitempty"`
}

// IsUnbounded reports whether neither bound is set.
func (r TimeRange) IsUnbounded() bool {
	return r.Lower == nil && r.Upper == nil
}

// NewTimeRange is a convenience for a closed range.
func NewTimeRange(lower, upper time.Time) TimeRange {
	return TimeRange{Lower: &lower, Upper: &upper}
}

// IDSet lists ids that must all be present in an id-array column.
// An empty set places no constraint.
type IDSet struct {
	IDs []uint32 `json:"ids"`
}

// StructuredFilter selects users by named time ranges and id sets.
// All entries are combined with AND.
type StructuredFilter struct {
	Timestamps map[string]TimeRange `json:"timestamps,omitempty"`
	IDs        map[string]IDSet     `json:"ids,omitempty"`
}

// WithTimestamp returns a copy of f with an extra time constraint.
func (f StructuredFilter) WithTimestamp(field string, r TimeRange) StructuredFilter {
	out := f.clone()
	out.Timestamps[field] = r
	return out
}

// WithIDs returns a copy of f with an extra id-set constraint.
func (f StructuredFilter) WithIDs(field string, ids ...uint32) StructuredFilter {
	out := f.clone()
	out.IDs[field] = IDSet{IDs: append([]uint32(nil), ids...)}
	return out
}

func (f StructuredFilter) clone() StructuredFilter {
	out := StructuredFilter{
		Timestamps: make(map[string]TimeRange, len(f.Timestamps)+1),
		IDs:        make(map[string]IDSet, len(f.IDs)+1),
	}
	for k, v := range f.Timestamps {
		out.Timestamps[k] = v
	}
	for k, v := range f.IDs {
		out.IDs[k] = v
	}
	return out
}
