// Command kiln hosts the storage, spawn and discovery services, boots the
// service bundles found under the search directory and keeps them running.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/najoast/kiln/bootstrap"
	"github.com/najoast/kiln/config"
	"github.com/najoast/kiln/initd"
	"github.com/najoast/kiln/logging"
)

type options struct {
	configFile  string
	searchDir   string
	storageRoot string
	logLevel    string
	once        bool
}

func main() {
	opts := options{}
	flag.StringVar(&opts.configFile, "config", "", "configuration file (default: search ./, ./config, /etc/kiln)")
	flag.StringVar(&opts.searchDir, "search-dir", "", "bundle directory relative to the storage root")
	flag.StringVar(&opts.storageRoot, "storage-root", "", "directory served by the storage service")
	flag.StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	flag.BoolVar(&opts.once, "once", false, "exit after the boot completes")
	flag.Parse()

	if err := run(context.Background(), opts); err != nil {
		fmt.Fprintf(os.Stderr, "kiln: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, configFile, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger, closer, err := logging.New(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	appOpts := []bootstrap.Option{bootstrap.WithLogger(logger)}
	if configFile != "" && !opts.once {
		appOpts = append(appOpts, bootstrap.WithConfigFile(configFile))
	}
	app, err := bootstrap.NewApplication(cfg, appOpts...)
	if err != nil {
		return err
	}

	logger.Info().
		Str("config", configFile).
		Str("storage_root", cfg.Storage.Root).
		Str("search_dir", cfg.Init.SearchDir).
		Msg("starting kiln")

	if opts.once {
		if err := app.Start(ctx); err != nil {
			return err
		}
		report(app.Boot())
		return app.Shutdown(ctx)
	}

	app.LifecycleManager().AddListener(func(ev bootstrap.LifecycleEvent) {
		if ev.Type == "lifecycle.started" {
			report(app.Boot())
		}
	})
	return app.Run(ctx)
}

// loadConfig reads the configuration and applies command line overrides
func loadConfig(opts options) (*config.Config, string, error) {
	loader := config.NewLoader()

	var (
		cfg        *config.Config
		configFile = opts.configFile
		err        error
	)
	if configFile == "" {
		cfg, configFile, err = loader.AutoLoad()
	} else {
		cfg, err = loader.Load(configFile)
	}
	if err != nil {
		return nil, "", err
	}

	if opts.searchDir != "" {
		cfg.Init.SearchDir = opts.searchDir
	}
	if opts.storageRoot != "" {
		cfg.Storage.Root = opts.storageRoot
	}
	if opts.logLevel != "" {
		cfg.Log.Level = config.LogLevel(strings.ToLower(opts.logLevel))
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid command line: %w", err)
	}
	return cfg, configFile, nil
}

// report prints the boot summary for operators
func report(boot *initd.Result) {
	if boot == nil {
		return
	}
	fmt.Printf("started %d service(s): %s\n", len(boot.Order), strings.Join(boot.Order, " "))
	tags := make([]string, 0, len(boot.Registries))
	for tag := range boot.Registries {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		fmt.Printf("  target %-10s %s\n", tag, strings.Join(boot.Registries[tag].Services, " "))
	}
	for _, h := range boot.Hooks {
		fmt.Printf("  hook %-18s %-8s %s\n", h.Hook.Service, h.Hook.Target, h.Outcome)
	}
}
