package dstranslator

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	columnScheduledEventStatus = "status"
	columnScheduledEventSeq    = "sequence_number"
	columnScheduledEventFireAt = "fire_at"
)

// EventStatus is the lifecycle state of a ScheduledEvent. Pending is the
// only non-terminal state: pending events can fire or be cancelled, and
// fired/cancelled events are inert.
type EventStatus string

const (
	EventStatusPending   EventStatus = "pending"
	EventStatusFired     EventStatus = "fired"
	EventStatusCancelled EventStatus = "cancelled"
)

// Scan implements the sql.Scanner interface.
func (s *EventStatus) Scan(value any) error {
	switch v := value.(type) {
	case []byte:
		*s = EventStatus(v)
	case string:
		*s = EventStatus(v)
	default:
		return errors.New("invalid type for EventStatus")
	}
	return nil
}

// Value implements the driver.Valuer interface.
func (s EventStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// GormDataType implements the gorm.GormDataTypeInterface interface.
func (EventStatus) GormDataType() string {
	return "string"
}

func (s EventStatus) String() string {
	return string(s)
}

// RoleMentions is an ordered list of Discord role IDs, stored as a JSON
// string column. The special value "everyone" pings @everyone.
type RoleMentions []string

// Scan implements the sql.Scanner interface.
func (r *RoleMentions) Scan(value any) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return errors.New("invalid type for RoleMentions")
	}
}

// Value implements the driver.Valuer interface.
func (r RoleMentions) Value() (driver.Value, error) {
	data, err := json.Marshal(r)
	return string(data), err
}

// GormDataType implements the gorm.GormDataTypeInterface interface.
func (RoleMentions) GormDataType() string {
	return "string"
}

// Mentions renders the role list as Discord mention markup.
func (r RoleMentions) Mentions() string {
	parts := make([]string, 0, len(r))
	for _, id := range r {
		if id == "everyone" {
			parts = append(parts, "@everyone")
			continue
		}
		parts = append(parts, fmt.Sprintf("<@&%s>", id))
	}
	return strings.Join(parts, " ")
}

// ScheduledEvent is a role-ping scheduled for a specific UTC time in a
// specific channel. Events are scoped per channel, never global, and are
// addressed by users via SequenceNumber.
//
//nolint:lll // struct tags can't be split
type ScheduledEvent struct {
	ModelUintID

	// ChannelID is the Discord channel the event belongs to, and the
	// channel the ping is sent to when it fires
	ChannelID string `json:"channel_id" gorm:"index:idx_channel_seq,unique;type:string"`

	// SequenceNumber is unique within a channel, assigned at creation in
	// increasing order starting from 1, and never reused - not even after
	// cancellation. It's the user-facing handle for `cancel`.
	SequenceNumber int64 `json:"sequence_number" gorm:"index:idx_channel_seq,unique"`

	// FireAt is the absolute UTC fire time, in Unix milliseconds
	FireAt int64 `json:"fire_at" gorm:"column:fire_at"`

	// RoleTargets are the roles mentioned when the event fires
	RoleTargets RoleMentions `json:"role_targets"`

	// Message is the free-text payload appended to the ping
	Message string `json:"message" gorm:"type:string"`

	// Status is pending until the event fires or is cancelled
	Status EventStatus `json:"status" gorm:"index;type:string"`

	ModelUnixTime
}

func (e *ScheduledEvent) String() string {
	return fmt.Sprintf(
		"event %d in channel %s at %s [%s]",
		e.SequenceNumber,
		e.ChannelID,
		e.FireTime().Format(scheduleTimeLayout),
		e.Status,
	)
}

// FireTime returns FireAt as a UTC time.Time.
func (e *ScheduledEvent) FireTime() time.Time {
	return time.UnixMilli(e.FireAt).UTC()
}

// PingContent renders the message sent to the channel when the
// event fires.
func (e *ScheduledEvent) PingContent() string {
	mentions := e.RoleTargets.Mentions()
	if mentions == "" {
		return e.Message
	}
	return mentions + "\n" + e.Message
}
