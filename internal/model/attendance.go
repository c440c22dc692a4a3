package model

import "time"

// CheckInMethod distinguishes self-service from officer check-ins.
type CheckInMethod string

const (
	CheckInSelf  CheckInMethod = "self"
	CheckInAdmin CheckInMethod = "admin"
)

// Attendance is written by the check-in flow and only read here.
type Attendance struct {
	ID                string        `json:"id"`
	EventID           string        `json:"event_id"`
	UserID            string        `json:"user_id"`
	Method            CheckInMethod `json:"method"`
	CheckedInByUserID *string       `json:"checked_in_by_user_id,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}
