package app

import (
	"time"

	core "github.com/crmkit/crm_services/internal/core_domain"
)

const day = 24 * time.Hour

// RecencyFilter selects users created on the day that started days ago:
// created_at in [now - days, now - days + 1 day].
func RecencyFilter(now time.Time, days uint32) core.StructuredFilter {
	lower := now.Add(-time.Duration(days) * day)
	return core.StructuredFilter{}.WithTimestamp("created_at", core.NewTimeRange(lower, lower.Add(day)))
}

// InactivityFilter selects users last seen within the past days:
// last_visited_at in [now - days, now].
func InactivityFilter(now time.Time, days uint32) core.StructuredFilter {
	return core.StructuredFilter{}.WithTimestamp("last_visited_at", core.NewTimeRange(now.Add(-time.Duration(days)*day), now))
}
