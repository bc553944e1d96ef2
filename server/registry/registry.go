package registry

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/THPTUHA/livelook/server/events"
	"github.com/sirupsen/logrus"
)

// DefaultChannels is the seed catalog used when the config does not name one.
var DefaultChannels = []string{
	"WA_SEATTLE",
	"CA_SANTA_MONICA",
	"NY_TIMES_SQUARE",
}

// Channel is a snapshot of one catalog entry. BroadcasterID and StartTime are
// set exactly when IsLive is true.
type Channel struct {
	Name          string
	IsLive        bool
	BroadcasterID *string
	StartTime     *time.Time
}

// Expired is one reservation force-released by SweepExpired.
type Expired struct {
	Name          string
	BroadcasterID string
	StartTime     time.Time
}

type occupancy struct {
	broadcasterID string
	startTime     time.Time
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(r *Registry) {
		r.publisher = p
	}
}

func WithLogger(l *logrus.Entry) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// Registry owns the channel table. A single mutex guards it; every exported
// method is one critical section, so the check-and-set in Reserve cannot
// interleave with another Reserve, a Release or a sweep.
type Registry struct {
	mu       sync.Mutex
	order    []string
	channels map[string]*occupancy

	now       func() time.Time
	publisher events.Publisher
	logger    *logrus.Entry
}

// New builds a registry holding the given names, all FREE. The catalog is
// closed: names not listed here are rejected by every operation.
func New(names []string, opts ...Option) (*Registry, error) {
	if len(names) == 0 {
		return nil, ErrEmptyCatalog
	}
	r := &Registry{
		order:     make([]string, 0, len(names)),
		channels:  make(map[string]*occupancy, len(names)),
		now:       time.Now,
		publisher: events.Nop,
		logger:    logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: empty name", ErrUnknownChannel)
		}
		if _, ok := r.channels[name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateChannel, name)
		}
		r.channels[name] = nil
		r.order = append(r.order, name)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Registry) lookup(name string) (*occupancy, bool) {
	occ, ok := r.channels[name]
	return occ, ok
}

func snapshot(name string, occ *occupancy) Channel {
	ch := Channel{Name: name}
	if occ == nil {
		return ch
	}
	id := occ.broadcasterID
	start := occ.startTime
	ch.IsLive = true
	ch.BroadcasterID = &id
	ch.StartTime = &start
	return ch
}

func (r *Registry) Query(name string) (Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	occ, ok := r.lookup(name)
	if !ok {
		return Channel{}, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
	}
	return snapshot(name, occ), nil
}

// List returns every channel in catalog order.
func (r *Registry) List() []Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Channel, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, snapshot(name, r.channels[name]))
	}
	return out
}

// Reserve claims a FREE channel for broadcasterID. An occupied channel is not
// an error: allowed is false and nothing changes.
func (r *Registry) Reserve(name, broadcasterID string) (bool, error) {
	r.mu.Lock()
	occ, ok := r.lookup(name)
	if !ok {
		r.mu.Unlock()
		return false, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
	}
	if occ != nil {
		r.mu.Unlock()
		return false, nil
	}
	start := r.now()
	r.channels[name] = &occupancy{broadcasterID: broadcasterID, startTime: start}
	r.mu.Unlock()

	e := events.New(events.ChannelStarted, name, start)
	e.BroadcasterID = broadcasterID
	e.StartTime = &start
	r.publish(e)
	return true, nil
}

// Release frees the channel whatever its state. Releasing a FREE channel is a
// no-op and publishes nothing.
func (r *Registry) Release(name string) error {
	r.mu.Lock()
	occ, ok := r.lookup(name)
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownChannel, name)
	}
	r.channels[name] = nil
	at := r.now()
	r.mu.Unlock()

	if occ != nil {
		e := events.New(events.ChannelEnded, name, at)
		e.BroadcasterID = occ.broadcasterID
		e.StartTime = &occ.startTime
		e.Reason = events.ReasonReleased
		r.publish(e)
	}
	return nil
}

// SweepExpired frees every channel whose reservation is older than ttl at now.
// A reservation exactly ttl old is kept.
func (r *Registry) SweepExpired(now time.Time, ttl time.Duration) []Expired {
	var expired []Expired

	r.mu.Lock()
	for _, name := range r.order {
		occ := r.channels[name]
		if occ == nil || now.Sub(occ.startTime) <= ttl {
			continue
		}
		r.channels[name] = nil
		expired = append(expired, Expired{
			Name:          name,
			BroadcasterID: occ.broadcasterID,
			StartTime:     occ.startTime,
		})
	}
	r.mu.Unlock()

	for _, x := range expired {
		start := x.StartTime
		e := events.New(events.ChannelExpired, x.Name, now)
		e.BroadcasterID = x.BroadcasterID
		e.StartTime = &start
		e.Reason = events.ReasonExpired
		r.publish(e)
	}
	return expired
}

func (r *Registry) publish(e events.Event) {
	if err := r.publisher.Publish(e); err != nil {
		r.logger.WithError(err).WithField("channel", e.Channel).Warn("publish channel event")
	}
}
