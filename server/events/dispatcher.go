package events

import (
	"context"
	"errors"
	"sync"

	"github.com/segmentio/encoding/json"
	"github.com/sirupsen/logrus"
)

var ErrQueueFull = errors.New("event queue full")

const DefaultQueueSize = 256

// Sink receives events from the dispatcher. Deliver is called from a single
// goroutine, in publish order.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e Event) error
}

type Dispatcher struct {
	logger *logrus.Entry
	queue  chan Event

	mu    sync.RWMutex
	sinks []Sink
}

func NewDispatcher(logger *logrus.Entry, queueSize int, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Dispatcher{
		logger: logger,
		queue:  make(chan Event, queueSize),
		sinks:  sinks,
	}
}

func (d *Dispatcher) AddSink(s Sink) {
	d.mu.Lock()
	d.sinks = append(d.sinks, s)
	d.mu.Unlock()
}

// Publish never blocks. When the queue is full the event is dropped.
func (d *Dispatcher) Publish(e Event) error {
	select {
	case d.queue <- e:
		return nil
	default:
		d.logger.WithFields(logrus.Fields{
			"type":    e.Type,
			"channel": e.Channel,
		}).Warn("event queue full, dropping event")
		return ErrQueueFull
	}
}

// Run drains the queue until ctx is done, then flushes what is already queued.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case e := <-d.queue:
			d.deliver(ctx, e)
		case <-ctx.Done():
			d.Flush()
			return nil
		}
	}
}

// Flush delivers whatever is queued without waiting for more.
func (d *Dispatcher) Flush() {
	for {
		select {
		case e := <-d.queue:
			d.deliver(context.Background(), e)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e Event) {
	d.mu.RLock()
	sinks := d.sinks
	d.mu.RUnlock()

	for _, s := range sinks {
		if err := s.Deliver(ctx, e); err != nil {
			d.logger.WithError(err).WithFields(logrus.Fields{
				"sink":    s.Name(),
				"type":    e.Type,
				"channel": e.Channel,
			}).Error("deliver event")
		}
	}
}

// Marshal is the wire form shared by the network sinks.
func Marshal(e Event) ([]byte, error) {
	return json.Marshal(e)
}

type LogSink struct {
	logger *logrus.Entry
}

func NewLogSink(logger *logrus.Entry) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, e Event) error {
	fields := logrus.Fields{
		"id":      e.ID,
		"channel": e.Channel,
	}
	if e.BroadcasterID != "" {
		fields["broadcaster"] = e.BroadcasterID
	}
	if e.StartTime != nil {
		fields["duration"] = e.Duration().String()
	}
	s.logger.WithFields(fields).Info(string(e.Type))
	return nil
}
