package httpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/THPTUHA/livelook/pkg/logger"
	"github.com/THPTUHA/livelook/server/events"
	"github.com/THPTUHA/livelook/server/httpserver/config"
	"github.com/THPTUHA/livelook/server/httpserver/controllers"
	"github.com/THPTUHA/livelook/server/httpserver/middlewares"
	"github.com/THPTUHA/livelook/server/httpserver/routes"
	"github.com/THPTUHA/livelook/server/messaging"
	"github.com/THPTUHA/livelook/server/pkg/redis"
	"github.com/THPTUHA/livelook/server/registry"
	"github.com/THPTUHA/livelook/server/rtctoken"
	"github.com/THPTUHA/livelook/server/storage"
	"github.com/gin-gonic/gin"
	"github.com/oklog/run"
	"github.com/rs/zerolog/log"
)

type HttpServer struct {
	Router     *gin.Engine
	Config     *config.Configs
	Registry   *registry.Registry
	Sweeper    *registry.Sweeper
	Dispatcher *events.Dispatcher
	Issuer     *rtctoken.AgoraIssuer

	closers []io.Closer
}

// NewHTTPServer wires the registry, its sweeper, the event sinks and the
// router from conf. Optional sinks that are configured but unreachable fail
// the start-up.
func NewHTTPServer(ctx context.Context, conf *config.Configs) (*HttpServer, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	server := &HttpServer{Config: conf}
	if err := server.initialize(ctx); err != nil {
		server.Close()
		return nil, err
	}
	return server, nil
}

func (server *HttpServer) initialize(ctx context.Context) error {
	conf := server.Config
	level := conf.Log.Level

	server.Dispatcher = events.NewDispatcher(logger.InitLogger(level, "events"), conf.Events.QueueSize,
		events.NewLogSink(logger.InitLogger(level, "channel-events")),
	)
	if err := server.attachSinks(ctx); err != nil {
		return err
	}

	reg, err := registry.New(conf.Channels,
		registry.WithPublisher(server.Dispatcher),
		registry.WithLogger(logger.InitLogger(level, "registry")),
	)
	if err != nil {
		return err
	}
	server.Registry = reg

	server.Sweeper, err = registry.NewSweeper(reg, registry.SweeperConfig{
		TTL:      conf.Registry.TTL,
		Interval: conf.Registry.SweepInterval,
		Logger:   logger.InitLogger(level, "sweeper"),
	})
	if err != nil {
		return err
	}

	server.Issuer = rtctoken.NewAgoraIssuer(rtctoken.Config{
		AppID:          conf.RTC.AppID,
		AppCertificate: conf.RTC.AppCertificate,
		Validity:       conf.RTC.TokenTTL,
	})
	if !server.Issuer.Configured() {
		log.Warn().Msg("rtc app credentials missing, /rtc-token will answer 503")
	}

	var limiter *middlewares.IPRateLimiter
	if conf.RateLimit.RPS > 0 {
		limiter = middlewares.NewIPRateLimiter(conf.RateLimit.RPS, conf.RateLimit.Burst)
	}
	ctr := controllers.NewController(&controllers.ControllerConfig{
		Registry: reg,
		Issuer:   server.Issuer,
	})
	server.Router, err = routes.Build(ctr, routes.Options{
		AllowOrigins:   conf.HTTPServer.AllowOrigins,
		TrustedProxies: conf.HTTPServer.TrustedProxies,
		RateLimiter:    limiter,
		LogRequests:    true,
	})
	return err
}

func (server *HttpServer) attachSinks(ctx context.Context) error {
	conf := server.Config
	level := conf.Log.Level

	if conf.Nats.URL != "" {
		ns, err := messaging.NewNatsPub(&messaging.NatsPubConfig{
			URL:     conf.Nats.URL,
			Name:    conf.Nats.Name,
			Subject: conf.Nats.Subject,
			Logger:  logger.InitLogger(level, "nats"),
		})
		if err != nil {
			return err
		}
		server.Dispatcher.AddSink(ns)
		server.closers = append(server.closers, ns)
	}

	if conf.Redis.Host != "" {
		rs, err := redis.Dial(conf.Redis.Host, conf.Redis.Port, conf.Redis.Password, conf.Redis.Channel)
		if err != nil {
			return err
		}
		server.Dispatcher.AddSink(rs)
		server.closers = append(server.closers, rs)
	}

	if dsn := conf.PostgresDSN(); dsn != "" {
		archive, err := storage.Connect(ctx, dsn, logger.InitLogger(level, "storage"))
		if err != nil {
			return err
		}
		server.Dispatcher.AddSink(archive)
		server.closers = append(server.closers, archive)
	}
	return nil
}

type signalError struct {
	sig os.Signal
}

func (e signalError) Error() string {
	return fmt.Sprintf("received signal %s", e.sig)
}

// Run serves until ctx is cancelled or the process is signalled, then shuts
// every actor down.
func (server *HttpServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", server.Config.HTTPServer.Port))
	if err != nil {
		return err
	}
	return server.Serve(ctx, ln)
}

func (server *HttpServer) Serve(ctx context.Context, ln net.Listener) error {
	var g run.Group

	srv := &http.Server{Handler: server.Router}
	httpStopped := make(chan struct{})
	g.Add(func() error {
		log.Info().Str("addr", ln.Addr().String()).Msg("Starting the server...")
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}, func(error) {
		defer close(httpStopped)
		log.Warn().Msg("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Send()
		}
	})

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sweepStopped := make(chan struct{})
	g.Add(func() error {
		defer close(sweepStopped)
		return server.Sweeper.Run(sweepCtx)
	}, func(error) {
		stopSweep()
	})

	// The dispatcher outlives every producer so events published by draining
	// requests or a last sweep still reach the sinks.
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	g.Add(func() error {
		return server.Dispatcher.Run(dispatchCtx)
	}, func(error) {
		go func() {
			<-httpStopped
			<-sweepStopped
			stopDispatch()
		}()
	})

	signals := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	g.Add(func() error {
		select {
		case sig := <-signals:
			return signalError{sig: sig}
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return nil
		}
	}, func(error) {
		signal.Stop(signals)
		close(done)
	})

	err := g.Run()
	server.Dispatcher.Flush()
	server.Close()

	var sigErr signalError
	if errors.As(err, &sigErr) || errors.Is(err, context.Canceled) {
		log.Info().Msg("server stopped")
		return nil
	}
	return err
}

func (server *HttpServer) Close() {
	for _, c := range server.closers {
		if err := c.Close(); err != nil {
			log.Error().Err(err).Msg("close sink")
		}
	}
	server.closers = nil
}
