package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/voxgate/voxgate/auth"
	"github.com/voxgate/voxgate/gateway"
	"github.com/voxgate/voxgate/logger"
	"github.com/voxgate/voxgate/metrics"
	"github.com/voxgate/voxgate/transcriber"
	"github.com/voxgate/voxgate/usage"
)

var (
	Version   = "DEV"
	BuildTime = "unknown"
)

func main() {
	metrics.RegisterBuildInfo(BuildTime, Version)

	app := &cli.App{
		Name:    "voxgate",
		Usage:   "Token-authenticated streaming transcription gateway",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Flags:   flags(),
		Action:  run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Usage:   "Port for the gateway to listen on",
			Value:   3000,
			EnvVars: []string{"PORT"},
		},
		&cli.StringFlag{
			Name:    "metrics",
			Usage:   "Listen address for the metrics/pprof server",
			Value:   "127.0.0.1:33000",
			EnvVars: []string{"VOXGATE_METRICS"},
		},
		&cli.StringFlag{
			Name:    logger.LogLevelFlag,
			Usage:   "Application logging level {debug, info, warn, error, fatal}",
			Value:   "info",
			EnvVars: []string{"VOXGATE_LOGLEVEL"},
		},
		&cli.StringSliceFlag{
			Name:    "token",
			Usage:   "Bearer token mapping of the form token:userID, repeatable",
			EnvVars: []string{"VOXGATE_TOKENS"},
		},
		&cli.Int64Flag{
			Name:    "budget-ms",
			Usage:   "Initial per-user transcription budget in milliseconds",
			Value:   1000,
			EnvVars: []string{"VOXGATE_BUDGET_MS"},
		},
		&cli.IntFlag{
			Name:    "max-concurrent",
			Usage:   "Cap on concurrent transcription tasks across all users",
			Value:   gateway.DefaultMaxConcurrent,
			EnvVars: []string{"VOXGATE_MAX_CONCURRENT"},
		},
		&cli.DurationFlag{
			Name:    "grace-period",
			Usage:   "Bound on the shutdown drain after SIGINT/SIGTERM",
			Value:   5 * time.Second,
			EnvVars: []string{"VOXGATE_GRACE_PERIOD"},
		},
	}
}

func run(c *cli.Context) error {
	log := logger.CreateLoggerFromContext(c)

	tokens, err := auth.ParseMappings(c.StringSlice("token"))
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return errors.New("no --token mappings provided, the gateway would reject every client")
	}

	store := usage.NewInMemoryStore(c.Int64("budget-ms"), auth.UserIDs(tokens))
	registry := gateway.NewRegistry()
	engine := &transcriber.Simulated{WordDelay: transcriber.MsPerWord * time.Millisecond}
	dispatcher := gateway.NewDispatcher(registry, store, engine, c.Int("max-concurrent"), log)
	service := gateway.NewService(auth.NewStaticResolver(tokens), store, registry, dispatcher, log)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", c.Int("port")))
	if err != nil {
		return errors.Wrapf(err, "could not listen on port %d", c.Int("port"))
	}
	metricsListener, err := net.Listen("tcp", c.String("metrics"))
	if err != nil {
		return errors.Wrapf(err, "could not listen on metrics address %s", c.String("metrics"))
	}

	shutdownC := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-shutdownC
		cancel()
	}()

	readyServer := metrics.NewReadyServer()
	errC := make(chan error, 2)
	go func() {
		errC <- service.Serve(ctx, listener)
	}()
	go func() {
		errC <- metrics.ServeMetrics(metricsListener, shutdownC, readyServer, log)
	}()
	readyServer.SetReady(true)

	if err := waitForSignal(errC, shutdownC); err != nil {
		return err
	}
	readyServer.SetReady(false)

	// The gateway drains sessions and in-flight tasks; bound the wait.
	graceTimer := time.NewTimer(c.Duration("grace-period"))
	defer graceTimer.Stop()
	select {
	case <-errC:
	case <-graceTimer.C:
		log.Error().Msg("grace period expired before all sessions drained")
	}
	log.Info().Msg("voxgate shutdown complete")
	return nil
}
