package models

// BroadcastSession is one finished reservation. Times are epoch milliseconds.
type BroadcastSession struct {
	ID            int64  `json:"id"`
	EventID       string `json:"event_id"`
	Channel       string `json:"channel"`
	BroadcasterID string `json:"broadcaster_id"`
	StartedAt     int64  `json:"started_at"`
	EndedAt       int64  `json:"ended_at"`
	Reason        string `json:"reason"`
}
