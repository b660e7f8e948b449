package models

import (
	"sync"
	"time"
)

// ✅ Membership Roles
const (
	RoleParent = "parent" // admin-capable
	RoleChild  = "child"  // view/send, no admin rights
	RoleViewer = "viewer" // read-only
)

// ✅ Join Request Statuses
const (
	RequestStatusPending  = "pending"
	RequestStatusApproved = "approved"
	RequestStatusRejected = "rejected"
)

// ✅ Chat Message Types
const (
	MessageTypeText        = "text"
	MessageTypeImage       = "image"
	MessageTypeVoice       = "voice"
	MessageTypeGroceryList = "grocery_list"
)

// MaxImageBytes is the client-side cap on inline image payloads (5 MB)
const MaxImageBytes = 5 * 1024 * 1024

// TimestampLayout is a fixed-width RFC3339 variant. Unlike RFC3339Nano it
// never trims trailing zeros, so timestamps sort lexicographically, which the
// DynamoDB sort keys rely on.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

var (
	tsMu   sync.Mutex
	lastTS time.Time
)

// Timestamp returns the current UTC time in TimestampLayout. Successive calls
// are strictly increasing, so insertion order breaks createdAt ties.
func Timestamp() string {
	tsMu.Lock()
	defer tsMu.Unlock()
	now := time.Now().UTC()
	if !now.After(lastTS) {
		now = lastTS.Add(time.Nanosecond)
	}
	lastTS = now
	return now.Format(TimestampLayout)
}
