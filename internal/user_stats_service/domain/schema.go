package domain

import core "github.com/crmkit/crm_services/internal/core_domain"

// Schema is the allow-list of user_stats columns a filter may reference.
type Schema struct {
	TimeFields map[string]bool
	IDFields   map[string]bool
}

// DefaultSchema matches the user_stats table.
func DefaultSchema() Schema {
	return Schema{
		TimeFields: map[string]bool{
			"created_at":               true,
			"last_visited_at":          true,
			"last_watched_at":          true,
			"last_email_notification":  true,
			"last_in_app_notification": true,
			"last_sms_notification":    true,
		},
		IDFields: map[string]bool{
			core.CategoryRecentWatched:         true,
			core.CategoryViewedButNotStarted:   true,
			core.CategoryStartedButNotFinished: true,
			core.CategoryFinished:              true,
		},
	}
}
