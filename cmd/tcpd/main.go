package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kavlak/tcpd/internal/config"
	"github.com/kavlak/tcpd/internal/netio"
	"github.com/kavlak/tcpd/internal/reactor"
	"github.com/kavlak/tcpd/internal/scheme"
	"github.com/kavlak/tcpd/internal/tcpconn"
)

var socketPath string

// addSocketFlag is factored out of init() so it can take a *pflag.FlagSet
// directly, the way the pack's multi-command CLIs share flag definitions
// across more than one cobra.Command (telepresence's addPreviewFlags).
func addSocketFlag(flags *pflag.FlagSet) {
	flags.StringVar(&socketPath, "socket", "/tmp/tcpd.sock", "path of the scheme transport's Unix domain socket")
}

var rootCmd = &cobra.Command{
	Use:   "tcpd",
	Short: "tcpd",
	Long:  "tcpd - a userspace TCP daemon exposing connections through a tcp: resource scheme",
	Args:  cobra.NoArgs,
	RunE:  run,
}

func init() {
	addSocketFlag(rootCmd.Flags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	env, err := config.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLogger(env.LogLevel)

	clock := netio.NewMonotonicClock()

	ip, err := netio.OpenTUN(netio.TUNConfig{
		DevName:    env.TUNDevice,
		LocalIP:    env.LocalIP,
		RemoteIP:   env.RemoteIP,
		SubnetMask: env.SubnetMask,
		MTU:        env.MTU,
	})
	if err != nil {
		return fmt.Errorf("open TUN device: %w", err)
	}

	log.WithField("socket", socketPath).Info("waiting for scheme client")
	os.Remove(socketPath)
	ch, err := scheme.ListenUnix(socketPath)
	if err != nil {
		closeAll(log, ip)
		return fmt.Errorf("open scheme transport: %w", err)
	}

	engine := tcpconn.New(ip, clock, log.WithField("component", "tcpconn"))
	r := reactor.New(engine, ch, log.WithField("component", "reactor"))

	ctx, cancel := context.WithCancel(cmd.Context())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	log.WithField("scheme", env.SchemeName).Info("tcpd running")
	runErr := r.Run(ctx)
	if runErr != nil && runErr != context.Canceled {
		log.WithError(runErr).Error("reactor exited")
	}

	return closeAll(log, ip, ch)
}

func closeAll(log *logrus.Entry, closers ...interface{ Close() error }) error {
	var result error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if result != nil {
		log.WithError(result).Warn("errors during shutdown")
	}
	return result
}

func newLogger(level string) *logrus.Entry {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	}
	return log.WithField("daemon", "tcpd")
}
