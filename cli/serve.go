package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mathmate/tmjlink/cli/fileio"
	"github.com/mathmate/tmjlink/config"
	"github.com/mathmate/tmjlink/kernel"
	"github.com/mathmate/tmjlink/out"
	"github.com/mathmate/tmjlink/server"
	"github.com/mathmate/tmjlink/store"
	"github.com/mathmate/tmjlink/tracer"
	"github.com/mathmate/tmjlink/util"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.elastic.co/apm"
)

type serveOptions struct {
	configPath     string
	cacheDir       string
	listen         string
	hostPID        int
	kernel         string
	layout         string
	logFile        string
	maxConnections int
	apmServerURL   string
	verbose        bool
}

func NewServeCommand() *cobra.Command {
	return newServeCommand(&serveOptions{})
}

func newServeCommand(opts *serveOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [cache_dir] [host_pid] [kernel args...]",
		Short: "Start accepting editor connections",
		Long: `Start accepting editor connections on a local port, logged as "Server started on port: <port>".

The server stops when it receives SIGINT or SIGTERM, or when the host process exits.
SIGUSR1 logs the open connections and the allocated sessions.

Example:
  tmjlink serve --config tmjlink.yml
  tmjlink serve /tmp/tmjlink 4242 wolfram-adapter -mathlink`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts, args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return serve(ctx, cfg, cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "YAML config file")
	flags.StringVar(&opts.cacheDir, "cache-dir", "", "folder holding session files")
	flags.StringVar(&opts.listen, "listen", "", "address to listen on")
	flags.IntVar(&opts.hostPID, "host-pid", 0, "stop when this process exits")
	flags.StringVar(&opts.kernel, "kernel", "", "kernel adapter program")
	flags.StringVar(&opts.layout, "layout", "", "html layout template")
	flags.StringVar(&opts.logFile, "log-file", "", "log to this file instead of stderr")
	flags.IntVar(&opts.maxConnections, "max-connections", 0, "maximum simultaneous connections, 0 for no limit")
	flags.StringVar(&opts.apmServerURL, "apm-server-url", "", "trace commands to this Elastic APM server")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log debug messages")
	return cmd
}

// loadConfig merges defaults, the config file, flags and positional arguments, in that order.
func loadConfig(cmd *cobra.Command, opts *serveOptions, args []string) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return cfg, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("cache-dir") {
		cfg.CacheDir = opts.cacheDir
	}
	if flags.Changed("listen") {
		cfg.Listen = opts.listen
	}
	if flags.Changed("host-pid") {
		cfg.HostPID = opts.hostPID
	}
	if flags.Changed("kernel") {
		cfg.Kernel.Command = opts.kernel
	}
	if flags.Changed("layout") {
		cfg.Layout = opts.layout
	}
	if flags.Changed("log-file") {
		cfg.LogFile = opts.logFile
	}
	if flags.Changed("max-connections") {
		cfg.MaxConnections = opts.maxConnections
	}
	if flags.Changed("apm-server-url") {
		cfg.APM.ServerURL = opts.apmServerURL
	}
	if flags.Changed("verbose") {
		cfg.Verbose = opts.verbose
	}

	if len(args) > 0 {
		cfg.CacheDir = args[0]
	}
	if len(args) > 1 {
		pid, err := util.Aton(args[1], nil)
		if err != nil {
			return cfg, errors.Wrap(err, "host pid")
		}
		cfg.HostPID = pid
	}
	if len(args) > 2 {
		extra := args[2:]
		if cfg.Kernel.Command == "" {
			cfg.Kernel.Command, extra = extra[0], extra[1:]
		}
		cfg.Kernel.Args = append(cfg.Kernel.Args, extra...)
	}
	return cfg, errors.Wrap(cfg.Validate(), "invalid configuration")
}

// serve runs the server until it is told to stop by a signal, the host process or ctx.
func serve(ctx context.Context, cfg config.Config, stderr io.Writer) error {
	if err := fileio.Bootstrap(cfg.CacheDir); err != nil {
		return err
	}
	logw := stderr
	if cfg.LogFile != "" {
		f, err := fileio.OpenLog(cfg.LogFile)
		if err != nil {
			return err
		}
		defer f.Close()
		logw = f
	}
	logger := out.NewLogger(logw, cfg.Verbose)

	if err := fileio.WritePid(cfg.PidPath()); err != nil {
		return err
	}
	defer fileio.RemovePid(cfg.PidPath())

	var apmTracer *apm.Tracer
	if cfg.APM.ServerURL != "" {
		t, err := tracer.NewTracer(logger, cfg.APM.FlushTimeout, cfg.APM.ServiceName, cfg.APM.SecretToken, cfg.APM.ServerURL)
		if err != nil {
			return err
		}
		defer t.FlushAll()
		apmTracer = t.Tracer
	}

	srv := server.New(server.Options{
		Listen:         cfg.Listen,
		CacheDir:       cfg.CacheDir,
		HostPID:        cfg.HostPID,
		AcceptTimeout:  cfg.AcceptTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		MaxConnections: cfg.MaxConnections,
		Factory:        kernel.ProcessFactory(logger, cfg.Kernel.Command, cfg.Kernel.Args...),
		StoreOptions:   []store.Option{store.WithLayout(cfg.LayoutPath())},
		Logger:         logger,
		Tracer:         apmTracer,
	})
	if err := srv.Start(); err != nil {
		logger.Errorf("%s", err.Error())
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go handleSignals(ctx, done, srv, logger)
	return srv.Run()
}

// SIGINT and SIGTERM stop the server, SIGUSR1 logs its status.
func handleSignals(ctx context.Context, done <-chan struct{}, srv *server.Server, logger *out.Logger) {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)
	defer signal.Stop(sigc)

	for {
		select {
		case sig := <-sigc:
			if sig == syscall.SIGUSR1 {
				logger.Infof("status\n%s", srv.Status())
				continue
			}
			logger.Infof("caught %s, shutting down", sig)
			srv.Shutdown()
		case <-ctx.Done():
			srv.Shutdown()
			return
		case <-done:
			return
		}
	}
}
