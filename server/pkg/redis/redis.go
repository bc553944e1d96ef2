package redis

import (
	"context"
	"fmt"

	"github.com/THPTUHA/livelook/server/events"
	"github.com/go-redis/redis/v7"
)

func NewRedisDB(host, port, password string) *redis.Client {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       0,
	})
	return redisClient
}

type publisher interface {
	Publish(channel string, message interface{}) *redis.IntCmd
}

// EventSink publishes channel events on a redis pub/sub channel.
type EventSink struct {
	channel string
	client  *redis.Client
	pub     publisher
}

func NewEventSink(client *redis.Client, channel string) *EventSink {
	return &EventSink{channel: channel, client: client, pub: client}
}

// Dial connects and pings before handing back the sink.
func Dial(host, port, password, channel string) (*EventSink, error) {
	client := NewRedisDB(host, port, password)
	if err := client.Ping().Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s:%s: %w", host, port, err)
	}
	return NewEventSink(client, channel), nil
}

func (s *EventSink) Name() string { return "redis" }

func (s *EventSink) Deliver(ctx context.Context, e events.Event) error {
	data, err := events.Marshal(e)
	if err != nil {
		return err
	}
	pub := s.pub
	if s.client != nil {
		pub = s.client.WithContext(ctx)
	}
	return pub.Publish(s.channel, data).Err()
}

func (s *EventSink) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
