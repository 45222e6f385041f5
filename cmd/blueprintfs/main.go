// Command blueprintfs mounts a physical store with template-declared
// virtual entries merged in. Virtual entries materialize on first write.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/blueprintfs/blueprintfs/internal/adapter"
	"github.com/blueprintfs/blueprintfs/internal/config"
)

const version = "0.1.0"

// daemonEnv marks the re-executed background child so it does not daemonize
// again.
const daemonEnv = "BLUEPRINTFS_DAEMONIZED"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("blueprintfs", flag.ContinueOnError)
	configPath := fs.String("config", "", "configuration file (YAML)")
	collection := fs.String("collection", "", "collection directory under the store root")
	marker := fs.String("marker", "", "project marker path relative to a project root")
	viewport := fs.String("viewport", "", "viewport directory name (must start with a dot)")
	templatesRoot := fs.String("templates-root", "", "directory holding one subdirectory per template")
	templates := fs.String("templates", "", "templates to apply, comma-separated name=mode pairs")
	foreground := fs.Bool("foreground", false, "stay in the foreground")
	allowOther := fs.Bool("allow-other", false, "allow other users to access the mount")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error)")
	logFile := fs.String("log-file", "", "log file path (default stderr)")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	showVersion := fs.Bool("version", false, "print version and exit")

	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintf(out, "Usage: blueprintfs [flags] STORE_ROOT MOUNT_POINT\n\n")
		fmt.Fprintf(out, "Mounts STORE_ROOT at MOUNT_POINT with template-declared virtual\n")
		fmt.Fprintf(out, "entries merged in. Both arguments may instead come from -config or\n")
		fmt.Fprintf(out, "BLUEPRINTFS_* environment variables. Send SIGHUP to rescan templates.\n\n")
		fmt.Fprintf(out, "Flags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Println("blueprintfs " + version)
		return 0
	}
	if fs.NArg() > 2 {
		fmt.Fprintf(os.Stderr, "blueprintfs: unexpected argument %q\n", fs.Arg(2))
		fs.Usage()
		return 2
	}

	cfg := config.NewDefault()
	if *configPath != "" {
		if err := cfg.LoadFromFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "blueprintfs: %v\n", err)
			return 1
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "blueprintfs: %v\n", err)
		return 1
	}

	// Flags given explicitly override both the file and the environment.
	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "collection":
			cfg.Store.Collection = *collection
		case "marker":
			cfg.Store.Marker = *marker
		case "viewport":
			cfg.Mount.Viewport = *viewport
		case "templates-root":
			cfg.Templates.Root = *templatesRoot
		case "templates":
			use, err := config.ParseTemplateList(*templates)
			if err != nil {
				flagErr = err
				return
			}
			cfg.Templates.Use = use
		case "foreground":
			cfg.Mount.Foreground = *foreground
		case "allow-other":
			cfg.Mount.AllowOther = *allowOther
		case "log-level":
			cfg.Logging.Level = *logLevel
		case "log-file":
			cfg.Logging.File = *logFile
		case "metrics-addr":
			cfg.Metrics.Enabled = *metricsAddr != ""
			cfg.Metrics.Address = *metricsAddr
		}
	})
	if flagErr != nil {
		fmt.Fprintf(os.Stderr, "blueprintfs: %v\n", flagErr)
		return 2
	}

	if fs.NArg() > 0 {
		cfg.Store.Root = fs.Arg(0)
	}
	if fs.NArg() > 1 {
		cfg.Mount.Point = fs.Arg(1)
	}
	if err := normalizePaths(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "blueprintfs: %v\n", err)
		return 1
	}

	// Background mode re-executes the binary detached; the child carries
	// the marker variable and takes the foreground path below.
	if !cfg.Mount.Foreground && os.Getenv(daemonEnv) == "" {
		if cfg.Logging.File == "" {
			fmt.Fprintln(os.Stderr, "blueprintfs: running in background without -log-file, log output will be discarded")
		}
		if err := daemonize(); err != nil {
			fmt.Fprintf(os.Stderr, "blueprintfs: %v\n", err)
			return 1
		}
		return 0
	}

	ctx := context.Background()
	a, err := adapter.New(ctx, "", "", cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "blueprintfs: %v\n", err)
		return 1
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "blueprintfs: %v\n", err)
		return 1
	}
	log := a.Logger().Component("main")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	unmounted := make(chan struct{})
	go func() {
		a.Wait()
		close(unmounted)
	}()

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				log.Info("SIGHUP received, rescanning templates")
				if err := a.Rebuild(ctx); err != nil {
					log.WithField("error", err).Error("rebuild failed")
				}
				continue
			}
			log.WithField("signal", sig.String()).Info("shutting down")
			if err := a.Stop(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "blueprintfs: shutdown: %v\n", err)
				return 1
			}
			return 0
		case <-unmounted:
			log.Info("filesystem unmounted, exiting")
			if err := a.Stop(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "blueprintfs: shutdown: %v\n", err)
				return 1
			}
			return 0
		}
	}
}

// normalizePaths makes the operator-supplied locations absolute so that
// validation and the daemon re-exec see the same paths regardless of the
// working directory.
func normalizePaths(cfg *config.Configuration) error {
	for _, p := range []*string{&cfg.Store.Root, &cfg.Mount.Point, &cfg.Templates.Root} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("cannot resolve path %q: %w", *p, err)
		}
		*p = abs
	}
	return nil
}
