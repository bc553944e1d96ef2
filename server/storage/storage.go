package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/THPTUHA/livelook/server/events"
	"github.com/THPTUHA/livelook/server/storage/models"
	"github.com/jpillora/backoff"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const schema = `
	CREATE TABLE IF NOT EXISTS broadcast_sessions (
		id             BIGSERIAL PRIMARY KEY,
		event_id       TEXT NOT NULL UNIQUE,
		channel        TEXT NOT NULL,
		broadcaster_id TEXT NOT NULL,
		started_at     BIGINT NOT NULL,
		ended_at       BIGINT NOT NULL,
		reason         TEXT NOT NULL
	)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Archive appends finished broadcast sessions to postgres. It is write only:
// the registry never reads it back.
type Archive struct {
	db  *sql.DB
	ex  execer
	log *logrus.Entry
}

type ConnectOptions struct {
	Attempts int
	MinDelay time.Duration
	MaxDelay time.Duration
}

func defaultConnectOptions() ConnectOptions {
	return ConnectOptions{
		Attempts: 5,
		MinDelay: 200 * time.Millisecond,
		MaxDelay: 5 * time.Second,
	}
}

// Connect opens uri and retries the first ping with jittered backoff.
func Connect(ctx context.Context, uri string, log *logrus.Entry) (*Archive, error) {
	db, err := sql.Open("postgres", uri)
	if err != nil {
		return nil, err
	}

	opts := defaultConnectOptions()
	b := &backoff.Backoff{
		Min:    opts.MinDelay,
		Max:    opts.MaxDelay,
		Factor: 2,
		Jitter: true,
	}
	for {
		err = db.PingContext(ctx)
		if err == nil {
			break
		}
		if int(b.Attempt())+1 >= opts.Attempts {
			db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		d := b.Duration()
		log.WithError(err).WithField("retry_in", d.String()).Warn("postgres not ready")
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(d):
		}
	}

	a := &Archive{db: db, ex: db, log: log}
	if err := a.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("connected to postgres session archive")
	return a, nil
}

func (a *Archive) Migrate(ctx context.Context) error {
	if _, err := a.ex.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate broadcast_sessions: %w", err)
	}
	return nil
}

func (a *Archive) InsertSession(ctx context.Context, s *models.BroadcastSession) error {
	query := `
		INSERT INTO broadcast_sessions (event_id, channel, broadcaster_id, started_at, ended_at, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING`
	_, err := a.ex.ExecContext(ctx, query, s.EventID, s.Channel, s.BroadcasterID, s.StartedAt, s.EndedAt, s.Reason)
	return err
}

// SessionFromEvent is nil for events that do not close a session.
func SessionFromEvent(e events.Event) *models.BroadcastSession {
	if e.Type != events.ChannelEnded && e.Type != events.ChannelExpired {
		return nil
	}
	if e.StartTime == nil {
		return nil
	}
	return &models.BroadcastSession{
		EventID:       e.ID,
		Channel:       e.Channel,
		BroadcasterID: e.BroadcasterID,
		StartedAt:     e.StartTime.UnixMilli(),
		EndedAt:       e.At.UnixMilli(),
		Reason:        e.Reason,
	}
}

func (a *Archive) Name() string { return "postgres" }

func (a *Archive) Deliver(ctx context.Context, e events.Event) error {
	s := SessionFromEvent(e)
	if s == nil {
		return nil
	}
	return a.InsertSession(ctx, s)
}

func (a *Archive) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
