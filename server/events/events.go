package events

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	ChannelStarted Type = "channel.started"
	ChannelEnded   Type = "channel.ended"
	ChannelExpired Type = "channel.expired"
)

const (
	ReasonReleased = "released"
	ReasonExpired  = "expired"
)

// Event describes one transition of a channel. StartTime is the start of the
// reservation the event belongs to, so an ended or expired event still knows
// when the session began.
type Event struct {
	ID            string     `json:"id"`
	Type          Type       `json:"type"`
	Channel       string     `json:"channel"`
	BroadcasterID string     `json:"broadcasterId,omitempty"`
	StartTime     *time.Time `json:"startTime,omitempty"`
	At            time.Time  `json:"at"`
	Reason        string     `json:"reason,omitempty"`
}

func New(typ Type, channel string, at time.Time) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    typ,
		Channel: channel,
		At:      at,
	}
}

// Duration is how long the session lasted, zero when the start is unknown.
func (e Event) Duration() time.Duration {
	if e.StartTime == nil {
		return 0
	}
	return e.At.Sub(*e.StartTime)
}

// Publisher is what the registry and the sweeper see.
type Publisher interface {
	Publish(Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) error { return nil }

// Nop is a Publisher that drops every event.
var Nop Publisher = nopPublisher{}
