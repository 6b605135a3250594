// banishd hides the X11 pointer while you type and brings it back the
// moment the pointer moves or a button is pressed.
//
// Keys that only ever modify other keys can be exempted, so that
// ctrl-for-copy or a shifted capital does not blank the cursor:
//
//	banishd -ignore-mod ctrl -ignore-mod shift
//
// The daemon answers status and control requests on a unix socket; see
// banishctl.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"banishd/internal/activity"
	"banishd/internal/config"
	"banishd/internal/engine"
	"banishd/internal/ipc"
	"banishd/internal/logging"
	"banishd/internal/metrics"
	"banishd/internal/session"
	"banishd/internal/visibility"
	"banishd/internal/x11"
)

var version = "0.3.0"

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

var (
	configPath  = flag.String("config", "", "path to config file (default: ~/.config/banishd/config.toml)")
	sourceName  = flag.String("source", "", "input source: x11 or evdev (overrides config)")
	display     = flag.String("display", "", "X display to connect to (overrides $DISPLAY)")
	logLevel    = flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	showVersion = flag.Bool("version", false, "print version and exit")
	ignoreMods  stringList
)

func main() {
	flag.Var(&ignoreMods, "ignore-mod", "modifier key to exempt from hiding: shift, caps, ctrl, mod1..mod4, all (repeatable)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("banishd %s\n", version)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "banishd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	path := *configPath
	if path == "" {
		path = config.DefaultPath()
	}
	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logCfg, err := cfg.LoggerConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer log.Close()
	logging.SetDefault(log)

	log.Info("starting",
		"version", version,
		"source", cfg.Input.Source,
		"ignore_mods", cfg.IgnoreSet().String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, sink, err := openSource(cfg, log)
	if err != nil {
		return err
	}
	defer src.Close()

	eng := engine.New(
		src,
		activity.NewClassifier(cfg.IgnoreSet()),
		visibility.NewController(sink),
		log.WithComponent("engine"),
		metrics.New(),
	)

	var srv *ipc.Server
	if cfg.IPC.Enabled {
		srv = ipc.NewServer(cfg.IPC.SocketPath, eng, log.WithComponent("ipc"))
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("control socket: %w", err)
		}
	}

	if cfg.Session.WatchLock {
		watcher, err := session.NewWatcher(eng, log.WithComponent("session"))
		if err != nil {
			log.Warn("session watching unavailable", "err", err)
		} else {
			go watcher.Run(ctx)
		}
	}

	watchConfig(ctx, loader, cfg, log)

	err = eng.Run(ctx)

	// Cancel explicitly so the control socket drains even when the
	// engine died on its own rather than on a signal.
	stop()
	if srv != nil {
		srv.Wait()
	}

	log.Info("stopped")
	return err
}

// applyFlags folds command-line overrides into the loaded config.
func applyFlags(cfg *config.Config) {
	if len(ignoreMods) > 0 {
		cfg.Input.IgnoreMods = ignoreMods
	}
	if *sourceName != "" {
		cfg.Input.Source = *sourceName
	}
	if *display != "" {
		cfg.Input.Display = *display
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
}

// openSource builds the configured input source and the pointer sink.
// On X11 the connection serves as both; evdev delivers events but
// cannot touch the cursor, so hiding still goes through a sink-only X
// connection.
func openSource(cfg *config.Config, log *logging.Logger) (engine.Source, visibility.Sink, error) {
	if cfg.Input.Source == "evdev" {
		conn, err := x11.ConnectSink(cfg.Input.Display, log.WithComponent("x11"))
		if err != nil {
			return nil, nil, fmt.Errorf("connect to X server: %w", err)
		}
		src, err := openEvdev(cfg, conn, log)
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		return src, conn, nil
	}

	conn, err := x11.Connect(cfg.Input.Display, log.WithComponent("x11"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to X server: %w", err)
	}
	return conn, conn, nil
}

// watchConfig reloads the config file on change. Only the log level is
// applied live; anything else needs a restart, and the log says so.
func watchConfig(ctx context.Context, loader *config.Loader, active *config.Config, log *logging.Logger) {
	loader.OnChange(func(next *config.Config) {
		if level, err := logging.ParseLevel(next.Logging.Level); err == nil {
			log.SetLevel(level)
		}
		if !sameIgnoreMods(active.Input.IgnoreMods, next.Input.IgnoreMods) ||
			next.Input.Source != active.Input.Source {
			log.Warn("input settings changed on disk, restart to apply")
		}
	})
	if err := loader.Watch(ctx, func(err error) {
		log.Warn("config reload failed, keeping current settings", "err", err)
	}); err != nil {
		log.Warn("config watching unavailable", "err", err)
	}
}

func sameIgnoreMods(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
