package domain

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// WelcomeRequest targets users created Interval days ago.
type WelcomeRequest struct {
	ID         string   `json:"id" validate:"required,max=128"`
	Interval   uint32   `json:"interval" validate:"lte=3650"`
	ContentIDs []uint32 `json:"content_ids" validate:"max=1000"`
}

// RecallRequest targets users seen within the last LastVisitInterval days.
type RecallRequest struct {
	ID                string   `json:"id" validate:"required,max=128"`
	LastVisitInterval uint32   `json:"last_visit_interval" validate:"lte=3650"`
	ContentIDs        []uint32 `json:"content_ids" validate:"max=1000"`
}

// RemindRequest targets recently active users with unfinished contents.
type RemindRequest struct {
	ID                string `json:"id" validate:"required,max=128"`
	LastVisitInterval uint32 `json:"last_visit_interval" validate:"lte=3650"`
}

// Response echoes the correlation id once delivery has been set up.
type Response struct {
	ID string `json:"id"`
}

func (r *WelcomeRequest) Validate() error { return check(r) }
func (r *RecallRequest) Validate() error  { return check(r) }
func (r *RemindRequest) Validate() error  { return check(r) }

func check(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
