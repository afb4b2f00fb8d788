package models

import "time"

// NotificationStatus marks whether a recipient has seen a message.
type NotificationStatus string

const (
	NotificationStatusUnread NotificationStatus = "UNREAD"
	NotificationStatusRead   NotificationStatus = "READ"
)

// Notification is a write-only side-channel message from the core's
// perspective; recipients read and acknowledge through the API surface.
type Notification struct {
	ID              string             `db:"id" json:"id"`
	RecipientUserID string             `db:"recipient_user_id" json:"recipient_user_id"`
	Message         string             `db:"message" json:"message"`
	Status          NotificationStatus `db:"status" json:"status"`
	CreatedAt       time.Time          `db:"created_at" json:"created_at"`
}
