package model

import "time"

// RequestStatus is the lifecycle state of a friend or share request.
//
// Only pending requests are ever stored. Accepting or denying a request
// deletes it, so Accepted and Denied only appear in responses and events.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAccepted RequestStatus = "accepted"
	StatusDenied   RequestStatus = "denied"
)

// FriendRequest is a pending offer of friendship from SenderID to RecipientID.
type FriendRequest struct {
	ID          string        `json:"id"`
	SenderID    string        `json:"senderId"`
	SenderName  string        `json:"senderName"`
	RecipientID string        `json:"recipientId"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// HabitShareRequest is a pending offer to grant RecipientID read access to a habit.
type HabitShareRequest struct {
	ID          string        `json:"id"`
	HabitID     string        `json:"habitId"`
	HabitName   string        `json:"habitName"`
	SenderID    string        `json:"senderId"`
	RecipientID string        `json:"recipientId"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// Resolution is the outcome of responding to a request.
//
// Resolved is false when the request no longer existed (already answered,
// cancelled, or never created). That is a no-op, not an error.
type Resolution struct {
	RequestID string        `json:"requestId"`
	Resolved  bool          `json:"resolved"`
	Status    RequestStatus `json:"status,omitempty"`
}
