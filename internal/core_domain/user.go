package core_domain

import (
	"context"
	"io"
)

// Content categories tracked per user. Each maps to an id-array column.
const (
	CategoryRecentWatched         = "recent_watched"
	CategoryViewedButNotStarted   = "viewed_but_not_started"
	CategoryStartedButNotFinished = "started_but_not_finished"
	CategoryFinished              = "finished"
)

// Categories lists the fixed categories in column order.
var Categories = []string{
	CategoryRecentWatched,
	CategoryViewedButNotStarted,
	CategoryStartedButNotFinished,
	CategoryFinished,
}

// UserRecord is one matched user with their per-category content ids.
type UserRecord struct {
	Email      string              `json:"email"`
	Name       string              `json:"name"`
	Categories map[string][]uint32 `json:"categories"`
}

// RecordStream is a single-pass, forward-only sequence of user records.
// Next returns io.EOF once exhausted. Close must be called by the consumer,
// also when abandoning the stream early.
type RecordStream interface {
	Next(ctx context.Context) (UserRecord, error)
	Close()
}

// SliceStream serves records from memory. Used by tests and fakes.
type SliceStream struct {
	Records []UserRecord
	Err     error // returned after the records instead of io.EOF, if set
	pos     int
	closed  bool
}

func (s *SliceStream) Next(ctx context.Context) (UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return UserRecord{}, err
	}
	if s.closed {
		return UserRecord{}, io.EOF
	}
	if s.pos >= len(s.Records) {
		if s.Err != nil {
			return UserRecord{}, s.Err
		}
		return UserRecord{}, io.EOF
	}
	rec := s.Records[s.pos]
	s.pos++
	return rec, nil
}

func (s *SliceStream) Close() { s.closed = true }

// Closed reports whether Close was called.
func (s *SliceStream) Closed() bool { return s.closed }
