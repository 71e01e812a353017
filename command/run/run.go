// Copyright 2025 The streamhop Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

package run

import (
	"context"
	"net/http"
	"os"
	"os/exec"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/streamhop/streamhop"
	"github.com/streamhop/streamhop/bind"
	"github.com/streamhop/streamhop/internal/version"
	"github.com/streamhop/streamhop/log"
	"github.com/streamhop/streamhop/log/stdlog"
	"github.com/streamhop/streamhop/runctx"
)

// daemonEnv marks the re-executed child so it does not detach again.
const daemonEnv = "STREAMHOP_DAEMON"

type command struct {
	promReg     *prometheus.Registry
	proxyConfig *streamhop.ProxyConfig
	logConfig   *log.Config

	metricsAddr string
	daemonize   bool
	verbose     bool
}

func (c *command) runE(cmd *cobra.Command, _ []string) (cmdErr error) {
	if c.daemonize && os.Getenv(daemonEnv) == "" {
		return c.detach()
	}
	if c.verbose && c.logConfig.Level < log.DebugLevel {
		c.logConfig.Level = log.DebugLevel
	}

	logger := stdlog.New(c.logConfig)

	defer func() {
		if cmdErr != nil {
			logger.Errorf("fatal error exiting: %s", cmdErr)
			cmd.SilenceErrors = true
		}
	}()

	logger.Infof("streamhop %s (%s)", version.Version, version.Commit)

	if err := c.promReg.Register(collectors.NewGoCollector()); err != nil {
		return err
	}

	p, err := streamhop.NewProxy(c.proxyConfig, logger.Named("proxy"))
	if err != nil {
		return err
	}

	g := runctx.NewGroup()
	g.Add(p.Run)

	if c.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(c.promReg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: c.metricsAddr, Handler: mux}

		g.Add(func(ctx context.Context) error {
			go func() {
				<-ctx.Done()
				srv.Close()
			}()
			logger.Named("metrics").Infof("serving metrics on %s/metrics", c.metricsAddr)
			if err := srv.ListenAndServe(); err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	return g.Run()
}

// detach re-executes the binary in a new session, the Go stand-in for
// daemon(3). Stdio stays attached only with --verbose.
func (c *command) detach() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	child := exec.Command(exe, os.Args[1:]...)
	child.Env = append(os.Environ(), daemonEnv+"=1")
	child.Dir = "/var/tmp"
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if c.verbose {
		child.Stdout = os.Stdout
		child.Stderr = os.Stderr
	}

	if err := child.Start(); err != nil {
		return err
	}
	return nil
}

func Command() *cobra.Command {
	c := command{
		promReg:     prometheus.NewRegistry(),
		proxyConfig: streamhop.DefaultProxyConfig(),
		logConfig:   log.DefaultConfig(),
	}
	c.proxyConfig.PromRegistry = c.promReg
	c.proxyConfig.PromNamespace = promNs
	c.proxyConfig.Addr = ":9000"

	cmd := &cobra.Command{
		Use:   "run [--address <host:port>] [--accept-threads <n>]",
		Short: "Start the HTTP forward proxy",
		Long:  long,
		RunE:  c.runE,
	}

	fs := cmd.Flags()
	bind.ProxyConfig(fs, c.proxyConfig)
	bind.LogConfig(fs, c.logConfig)
	fs.StringVar(&c.metricsAddr, "metrics-address", "",
		"Address to expose Prometheus metrics on, empty disables the endpoint. ")
	fs.BoolVar(&c.daemonize, "daemonize", false,
		"Detach from the controlling terminal and run in the background. ")
	fs.BoolVar(&c.verbose, "verbose", false,
		"Log at debug level and keep stdio attached when daemonized. ")

	return cmd
}

const promNs = "streamhop"

const long = `Start the streaming HTTP forward proxy.
Each client connection is paired with one upstream connection selected by the
request Host header; bytes are streamed between the pair with minimal copying.
`
