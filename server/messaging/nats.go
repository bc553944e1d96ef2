package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/THPTUHA/livelook/server/events"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

type NatsPubConfig struct {
	URL           string
	Name          string
	Subject       string
	ReconnectWait time.Duration
	MaxReconnects int

	Logger *logrus.Entry
}

type publisher interface {
	Publish(subj string, data []byte) error
}

// NatsPub forwards channel events to <Subject>.<event type>.
type NatsPub struct {
	config *NatsPubConfig
	conn   *nats.Conn
	pub    publisher
}

func optNats(o *NatsPubConfig) []nats.Option {
	opts := make([]nats.Option, 0)
	opts = append(opts, nats.Name(o.Name))
	opts = append(opts, nats.MaxReconnects(o.MaxReconnects))
	opts = append(opts, nats.ReconnectWait(o.ReconnectWait))
	opts = append(opts, nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
		if err != nil {
			o.Logger.WithError(err).Warn("nats disconnected")
		}
	}))
	opts = append(opts, nats.ReconnectHandler(func(nc *nats.Conn) {
		o.Logger.WithField("url", nc.ConnectedUrl()).Info("nats reconnected")
	}))
	return opts
}

func defaults(config *NatsPubConfig) {
	if config.Name == "" {
		config.Name = "livelook"
	}
	if config.Subject == "" {
		config.Subject = "livelook"
	}
	if config.ReconnectWait == 0 {
		config.ReconnectWait = 2 * time.Second
	}
	if config.MaxReconnects == 0 {
		config.MaxReconnects = 10
	}
}

func NewNatsPub(config *NatsPubConfig) (*NatsPub, error) {
	defaults(config)
	nc, err := nats.Connect(config.URL, optNats(config)...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", config.URL, err)
	}
	config.Logger.WithField("url", nc.ConnectedUrl()).Info("nats connected")
	return &NatsPub{config: config, conn: nc, pub: nc}, nil
}

func (ns *NatsPub) Subject(t events.Type) string {
	return ns.config.Subject + "." + string(t)
}

func (ns *NatsPub) Name() string { return "nats" }

func (ns *NatsPub) Deliver(_ context.Context, e events.Event) error {
	data, err := events.Marshal(e)
	if err != nil {
		return err
	}
	return ns.pub.Publish(ns.Subject(e.Type), data)
}

func (ns *NatsPub) Close() error {
	if ns.conn == nil {
		return nil
	}
	if err := ns.conn.Drain(); err != nil {
		ns.conn.Close()
		return err
	}
	return nil
}
