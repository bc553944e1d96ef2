package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/THPTUHA/livelook/pkg/extcron"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTTL           = 120 * time.Second
	DefaultSweepInterval = 10 * time.Second
)

var ErrSweepConfig = errors.New("invalid sweep config")

type SweeperConfig struct {
	TTL      time.Duration
	Interval time.Duration
	Logger   *logrus.Entry
}

// Sweeper periodically force-releases reservations older than TTL. A channel
// can stay occupied for up to TTL plus one interval after it went stale.
type Sweeper struct {
	registry *Registry
	ttl      time.Duration
	interval time.Duration
	logger   *logrus.Entry
	cron     *cron.Cron
}

func NewSweeper(reg *Registry, conf SweeperConfig) (*Sweeper, error) {
	if conf.TTL == 0 {
		conf.TTL = DefaultTTL
	}
	if conf.Interval == 0 {
		conf.Interval = DefaultSweepInterval
	}
	if conf.TTL < 0 {
		return nil, fmt.Errorf("%w: ttl %s", ErrSweepConfig, conf.TTL)
	}
	// cron schedules have second granularity
	if conf.Interval < time.Second {
		return nil, fmt.Errorf("%w: interval %s below 1s", ErrSweepConfig, conf.Interval)
	}
	if conf.Logger == nil {
		conf.Logger = reg.logger
	}

	s := &Sweeper{
		registry: reg,
		ttl:      conf.TTL,
		interval: conf.Interval,
		logger:   conf.Logger,
	}
	s.cron = cron.New(cron.WithParser(extcron.NewParser()), cron.WithChain(
		cron.Recover(cron.PrintfLogger(conf.Logger)),
		cron.SkipIfStillRunning(cron.PrintfLogger(conf.Logger)),
	))
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", conf.Interval), func() { s.Sweep() }); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSweepConfig, err)
	}
	return s, nil
}

func (s *Sweeper) TTL() time.Duration      { return s.ttl }
func (s *Sweeper) Interval() time.Duration { return s.interval }

// Sweep runs one pass against the registry clock.
func (s *Sweeper) Sweep() []Expired {
	now := s.registry.now()
	expired := s.registry.SweepExpired(now, s.ttl)
	for _, x := range expired {
		s.logger.WithFields(logrus.Fields{
			"broadcaster": x.BroadcasterID,
			"held":        now.Sub(x.StartTime).Truncate(time.Millisecond).String(),
		}).Infof("auto-ended channel %s", x.Name)
	}
	return expired
}

// Run blocks until ctx is cancelled, then waits for a running sweep to finish.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"ttl":      s.ttl.String(),
		"interval": s.interval.String(),
	}).Info("sweeper started")
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("sweeper stopped")
	return nil
}
