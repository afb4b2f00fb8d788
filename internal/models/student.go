package models

import "time"

// Student is the read-only directory entry the scan processor consumes.
type Student struct {
	ID           string    `db:"id" json:"id"`
	FullName     string    `db:"full_name" json:"full_name"`
	GradeLevel   string    `db:"grade_level" json:"grade_level"`
	ParentUserID *string   `db:"parent_user_id" json:"parent_user_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Device is a registered biometric scanner. The registry maps an inbound
// scan's credential to a device; the core only trusts the result.
type Device struct {
	ID           string    `db:"id" json:"id"`
	SerialNumber string    `db:"serial_number" json:"serial_number"`
	Name         string    `db:"name" json:"name"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
