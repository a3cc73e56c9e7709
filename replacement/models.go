// Package replacement implements the replacement-request lifecycle: creation
// by an approver, broadcast to a shop channel, claim arbitration with an
// at-most-one-winner guarantee, cancellation and time-based expiry.
package replacement

import (
	"time"

	"shiftflow/notify"
)

// Status is the request lifecycle state. It only ever moves forward out of
// pending; once non-pending the row is immutable.
type Status string

const (
	StatusPending   Status = "pending"
	StatusTaken     Status = "taken"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Request is the central entity. Creator fields, date, position, shop and
// the creation timestamp are immutable after insert; claimant fields are set
// exactly once, together with the pending->taken transition.
type Request struct {
	ID          int64
	CreatorID   int64
	CreatorName string
	Date        time.Time
	Position    string
	Shop        string
	Status      Status

	ClaimantID     *int64
	ClaimantName   *string
	ClaimantHandle *string

	ChannelID *int64
	MessageID *int64

	CreatedAt time.Time
}

// BroadcastRef returns the recorded broadcast artifact, if any.
func (r Request) BroadcastRef() (notify.BroadcastRef, bool) {
	if r.ChannelID == nil || r.MessageID == nil {
		return notify.BroadcastRef{}, false
	}
	return notify.BroadcastRef{ChannelID: *r.ChannelID, MessageID: *r.MessageID}, true
}

// Claimant bundles the fields written by a winning claim.
type Claimant struct {
	ID     int64
	Name   string
	Handle string
}
