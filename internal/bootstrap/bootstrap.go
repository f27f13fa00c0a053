// Package bootstrap holds the daemon boot sequence shared by cmd/reccd
// and any example binary that wires in its own plugin package, so both
// get the same open -> serve -> self-check -> close lifecycle.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/oklog/run"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/reccd/reccd/daemon"
	"github.com/reccd/reccd/daemonclient"
	"github.com/reccd/reccd/internal/config"
	"github.com/reccd/reccd/pack"
	"github.com/reccd/reccd/plugin"
	"github.com/reccd/reccd/retry"
	"github.com/reccd/reccd/rpcapi"
)

// Options configures Run. ModuleName, if set, overrides whatever the
// loaded config file/env named, exactly as cmd/reccd's -m flag does.
type Options struct {
	ConfigPath string
	Address    string
	ModuleName string
	ShmDir     string
	Isolated   bool
	Logger     *slog.Logger
}

// Run loads opts.ModuleName (or the configured one) from
// plugin.DefaultRegistry, opens it, serves it over gRPC, self-checks,
// and blocks until an OS signal or the server stops. It mirrors
// reccd/daemon/daemon_servicer.py's run_daemon_server /
// run_daemon_until_complete.
func Run(opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	desc, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("bootstrap: load config: %w", err)
	}
	if opts.Address != "" {
		desc.Address = opts.Address
	}
	if opts.ModuleName != "" {
		desc.ModuleName = opts.ModuleName
	}
	if desc.ModuleName == "" {
		return fmt.Errorf("bootstrap: no module name configured")
	}

	handle, err := plugin.Load(desc.ModuleName, opts.Isolated)
	if err != nil {
		return fmt.Errorf("bootstrap: load plugin %q: %w", desc.ModuleName, err)
	}
	host := plugin.NewHost(handle)

	pool := pack.NewMmapPool(opts.ShmDir)
	servicer := daemon.NewServicer(host, logger, daemon.WithSharedMemoryPool(pool))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := servicer.Open(ctx); err != nil {
		return fmt.Errorf("bootstrap: open plugin: %w", err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), config.DefaultHeartbeatTimeout)
		defer closeCancel()
		if cerr := servicer.Close(closeCtx); cerr != nil {
			logger.Error("close failed", "error", cerr)
		}
	}()

	network, target := config.ParseAddress(desc.Address)
	lis, err := net.Listen(network, target)
	if err != nil {
		return fmt.Errorf("bootstrap: listen on %s: %w", desc.Address, err)
	}

	var serverOpts []grpc.ServerOption
	if desc.TLS != nil {
		serverOpts = append(serverOpts, grpc.Creds(credentials.NewTLS(desc.TLS)))
	}
	server := grpc.NewServer(serverOpts...)
	rpcapi.RegisterReccdAPIServer(server, servicer)

	var g run.Group

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	g.Add(func() error {
		<-sigCtx.Done()
		return sigCtx.Err()
	}, func(error) {
		stop()
		cancel()
	})

	g.Add(func() error {
		logger.Info("serving", "module", desc.ModuleName, "address", desc.Address)
		return server.Serve(lis)
	}, func(error) {
		server.GracefulStop()
	})

	selfCheckCtx, cancelSelfCheck := context.WithCancel(ctx)
	g.Add(func() error {
		selfCheck(selfCheckCtx, logger, *desc)
		<-selfCheckCtx.Done()
		return selfCheckCtx.Err()
	}, func(error) {
		cancelSelfCheck()
	})

	return g.Run()
}

// selfCheck dials back into this daemon and retries Heartbeat via the
// Retry Loop (C1) until it succeeds or attempts are exhausted. A failed
// self-check is observable in the logs, not fatal to an otherwise
// serving daemon.
func selfCheck(ctx context.Context, logger *slog.Logger, desc config.BindDescriptor) {
	client := daemonclient.New(desc, daemonclient.WithLogger(logger))
	if err := client.Open(ctx); err != nil {
		logger.Warn("self-check: could not open channel", "error", err)
		return
	}
	defer func() { _ = client.Close(ctx) }()

	ok := retry.TryConnection(ctx, func(ctx context.Context) (bool, error) {
		return client.Heartbeat(ctx, 0)
	},
		retry.WithTryCB(func(i, m int) { logger.Debug("self-check attempt", "attempt", i, "of", m) }),
		retry.WithSuccessCB(func(i, m int) { logger.Info("self-check succeeded", "attempt", i) }),
		retry.WithFailureCB(func(i, m int) { logger.Warn("self-check failed after all attempts", "attempts", m) }),
	)
	if !ok {
		logger.Warn("daemon did not respond to heartbeat during self-check")
	}
}
