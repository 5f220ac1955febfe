// Package bootstrap provides application implementation
package bootstrap

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/najoast/kiln/config"
	"github.com/najoast/kiln/core"
	"github.com/najoast/kiln/initd"
	"github.com/najoast/kiln/logging"
	"github.com/najoast/kiln/metrics"
	"github.com/najoast/kiln/programs"
	"github.com/najoast/kiln/registry"
	"github.com/najoast/kiln/spawn"
	"github.com/najoast/kiln/storage"
)

// Host service names, in the order they are registered
const (
	ServiceActorSystem = "actor-system"
	ServiceMetrics     = "metrics"
	ServiceWatcher     = "config-watcher"
	ServiceStorage     = "storage"
	ServiceSpawner     = "spawner"
	ServiceDiscovery   = "discovery"
	ServiceInit        = "init"
)

// DefaultApplication implements the Application interface
type DefaultApplication struct {
	// config holds the application configuration
	config *config.Config

	// configFile is watched for log level changes when set
	configFile string

	logger zerolog.Logger

	// lifecycleManager manages host service lifecycles
	lifecycleManager *DefaultLifecycleManager

	// catalog holds the programs payloads may name
	catalog *spawn.Catalog

	// gatherer backs the metrics endpoint
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer

	// actor system and the collaborator units living in it
	actorSystem core.ActorSystem
	storageUnit core.Capability
	spawnUnit   core.Capability
	discovery   core.Capability

	// boot is the result of the init run
	boot *initd.Result

	// mutex protects concurrent access
	mutex sync.RWMutex

	// running indicates if the application is running
	running bool

	// shutdownChan for graceful shutdown
	shutdownChan chan os.Signal
}

// Option customizes a DefaultApplication
type Option func(*DefaultApplication)

// WithConfigFile enables the configuration watcher on path
func WithConfigFile(path string) Option {
	return func(app *DefaultApplication) {
		app.configFile = path
	}
}

// WithLogger sets the logger handed to the actor system and to init
func WithLogger(logger zerolog.Logger) Option {
	return func(app *DefaultApplication) {
		app.logger = logger
	}
}

// WithCatalog replaces the program catalog. The builtin programs are
// registered into it unless already present.
func WithCatalog(catalog *spawn.Catalog) Option {
	return func(app *DefaultApplication) {
		app.catalog = catalog
	}
}

// WithMetricsRegistry sets where collectors are registered and gathered from
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(app *DefaultApplication) {
		app.registerer = reg
		app.gatherer = reg
	}
}

// NewApplication creates a kiln host for cfg
func NewApplication(cfg *config.Config, opts ...Option) (*DefaultApplication, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	app := &DefaultApplication{
		config:           cfg,
		logger:           zerolog.Nop(),
		lifecycleManager: NewLifecycleManager(),
		registerer:       prometheus.DefaultRegisterer,
		gatherer:         prometheus.DefaultGatherer,
		shutdownChan:     make(chan os.Signal, 1),
	}
	for _, opt := range opts {
		opt(app)
	}

	if app.catalog == nil {
		app.catalog = spawn.NewCatalog()
	}
	if err := app.registerPrograms(); err != nil {
		return nil, err
	}

	if cfg.Actor.Timeouts.Startup > 0 {
		app.lifecycleManager.SetTimeout(cfg.Actor.Timeouts.Startup)
	}
	if err := app.registerCoreServices(); err != nil {
		return nil, err
	}

	return app, nil
}

func (app *DefaultApplication) registerPrograms() error {
	if _, ok := app.catalog.Lookup(programs.IdleName); ok {
		return nil
	}
	return programs.Register(app.catalog, app.config.Init.RequestTimeout)
}

// registerCoreServices registers the host services and their dependencies
func (app *DefaultApplication) registerCoreServices() error {
	services := []struct {
		service Service
		deps    []string
	}{
		{&ActorSystemService{app: app}, nil},
		{&MetricsService{app: app}, nil},
		{&WatcherService{app: app}, nil},
		{&StorageService{app: app}, []string{ServiceActorSystem}},
		{&SpawnerService{app: app}, []string{ServiceStorage}},
		{&DiscoveryService{app: app}, []string{ServiceActorSystem}},
		{&InitService{app: app}, []string{ServiceStorage, ServiceSpawner, ServiceDiscovery}},
	}
	for _, s := range services {
		if err := app.lifecycleManager.Register(s.service.Name(), s.service, s.deps...); err != nil {
			return err
		}
	}
	return nil
}

// Start starts every host service, which ends with one init run
func (app *DefaultApplication) Start(ctx context.Context) error {
	app.mutex.Lock()
	if app.running {
		app.mutex.Unlock()
		return fmt.Errorf("application is already running")
	}
	app.running = true
	app.mutex.Unlock()

	if err := app.lifecycleManager.Start(app.logger.WithContext(ctx)); err != nil {
		app.mutex.Lock()
		app.running = false
		app.mutex.Unlock()
		return fmt.Errorf("failed to start services: %w", err)
	}
	return nil
}

// Run runs the application until a signal arrives or ctx is done
func (app *DefaultApplication) Run(ctx context.Context) error {
	if err := app.Start(ctx); err != nil {
		return err
	}

	signal.Notify(app.shutdownChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(app.shutdownChan)

	select {
	case sig := <-app.shutdownChan:
		app.logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-ctx.Done():
		app.logger.Info().Msg("context cancelled, shutting down")
	}

	return app.Shutdown(context.Background())
}

// Shutdown shuts down the application gracefully
func (app *DefaultApplication) Shutdown(ctx context.Context) error {
	app.mutex.Lock()
	if !app.running {
		app.mutex.Unlock()
		return nil // Already shut down
	}
	app.running = false
	app.mutex.Unlock()

	timeout := app.config.Actor.Timeouts.Shutdown
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := app.lifecycleManager.Stop(app.logger.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to stop services: %w", err)
	}
	return nil
}

// Boot returns the result of the init run
func (app *DefaultApplication) Boot() *initd.Result {
	app.mutex.RLock()
	defer app.mutex.RUnlock()
	return app.boot
}

// LifecycleManager returns the lifecycle manager
func (app *DefaultApplication) LifecycleManager() LifecycleManager {
	return app.lifecycleManager
}

// ActorSystem returns the runtime, nil before Start
func (app *DefaultApplication) ActorSystem() core.ActorSystem {
	app.mutex.RLock()
	defer app.mutex.RUnlock()
	return app.actorSystem
}

// Discovery returns the root registry the hooks are looked up in
func (app *DefaultApplication) Discovery() core.Capability {
	app.mutex.RLock()
	defer app.mutex.RUnlock()
	return app.discovery
}

// ActorSystemService owns the runtime every other host service lives in
type ActorSystemService struct {
	app *DefaultApplication
}

func (s *ActorSystemService) Name() string {
	return ServiceActorSystem
}

func (s *ActorSystemService) Start(ctx context.Context) error {
	logger := s.app.logger
	sys := core.NewActorSystemWithOptions(core.SystemOptions{
		MailboxSize: s.app.config.Actor.DefaultMailboxSize,
		Logger:      &logger,
	})

	s.app.mutex.Lock()
	s.app.actorSystem = sys
	s.app.mutex.Unlock()
	return nil
}

func (s *ActorSystemService) Stop(ctx context.Context) error {
	sys := s.app.ActorSystem()
	if sys == nil {
		return nil
	}
	return sys.Shutdown(ctx)
}

func (s *ActorSystemService) Health(ctx context.Context) (HealthStatus, error) {
	sys := s.app.ActorSystem()
	if sys == nil {
		return HealthStatus{
			State:   HealthUnhealthy,
			Message: "actor system not initialized",
		}, nil
	}

	return HealthStatus{
		State:   HealthHealthy,
		Message: "actor system running",
		Data:    map[string]interface{}{"units": len(sys.Stats())},
	}, nil
}

// StorageService runs the storage unit over the configured root
type StorageService struct {
	app *DefaultApplication
}

func (s *StorageService) Name() string {
	return ServiceStorage
}

func (s *StorageService) Start(ctx context.Context) error {
	root := s.app.config.Storage.Root
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return fmt.Errorf("storage root %s is not a directory", root)
	}

	unit, err := s.app.ActorSystem().Spawn(storage.NewService(root).Run, core.ActorOptions{Name: ServiceStorage})
	if err != nil {
		return err
	}

	s.app.mutex.Lock()
	s.app.storageUnit = unit
	s.app.mutex.Unlock()
	return nil
}

func (s *StorageService) Stop(ctx context.Context) error {
	return killUnit(s.app.ActorSystem(), s.app.storageUnit)
}

func (s *StorageService) Health(ctx context.Context) (HealthStatus, error) {
	return unitHealth(s.app.storageUnit), nil
}

// SpawnerService runs the spawn unit over the program catalog
type SpawnerService struct {
	app *DefaultApplication
}

func (s *SpawnerService) Name() string {
	return ServiceSpawner
}

func (s *SpawnerService) Start(ctx context.Context) error {
	svc := spawn.NewService(s.app.catalog, s.app.storageUnit, s.app.config.Init.RequestTimeout)
	unit, err := s.app.ActorSystem().Spawn(svc.Run, core.ActorOptions{Name: ServiceSpawner})
	if err != nil {
		return err
	}

	s.app.mutex.Lock()
	s.app.spawnUnit = unit
	s.app.mutex.Unlock()
	return nil
}

func (s *SpawnerService) Stop(ctx context.Context) error {
	return killUnit(s.app.ActorSystem(), s.app.spawnUnit)
}

func (s *SpawnerService) Health(ctx context.Context) (HealthStatus, error) {
	status := unitHealth(s.app.spawnUnit)
	status.Data = map[string]interface{}{"programs": s.app.catalog.Names()}
	return status, nil
}

// DiscoveryService starts the configured well-known programs and publishes
// them in the root registry
type DiscoveryService struct {
	app   *DefaultApplication
	units []core.Capability
}

func (s *DiscoveryService) Name() string {
	return ServiceDiscovery
}

func (s *DiscoveryService) Start(ctx context.Context) error {
	sys := s.app.ActorSystem()

	names := make([]string, 0, len(s.app.config.Discovery.Services))
	for name := range s.app.config.Discovery.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]registry.Entry, 0, len(names))
	for _, name := range names {
		program := s.app.config.Discovery.Services[name]
		fn, ok := s.app.catalog.Lookup(program)
		if !ok {
			return fmt.Errorf("discovery service %s: %w: %s", name, spawn.ErrUnknownProgram, program)
		}
		unit, err := sys.Spawn(fn, core.ActorOptions{Name: name})
		if err != nil {
			return fmt.Errorf("discovery service %s: %w", name, err)
		}
		s.units = append(s.units, unit)
		entries = append(entries, registry.Entry{Name: name, Cap: unit})
	}

	root, err := registry.Spawn(ctx, sys, ServiceDiscovery, entries)
	if err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Strs("services", names).Msg("discovery registry ready")

	s.app.mutex.Lock()
	s.app.discovery = root
	s.app.mutex.Unlock()
	return nil
}

func (s *DiscoveryService) Stop(ctx context.Context) error {
	sys := s.app.ActorSystem()
	err := killUnit(sys, s.app.Discovery())
	for _, unit := range s.units {
		if kerr := killUnit(sys, unit); kerr != nil {
			err = kerr
		}
	}
	s.units = nil
	return err
}

func (s *DiscoveryService) Health(ctx context.Context) (HealthStatus, error) {
	status := unitHealth(s.app.Discovery())
	status.Data = map[string]interface{}{"services": len(s.units)}
	return status, nil
}

// MetricsService exposes the collectors over HTTP when enabled
type MetricsService struct {
	app    *DefaultApplication
	addr   string
	cancel context.CancelFunc
	done   chan error
}

func (s *MetricsService) Name() string {
	return ServiceMetrics
}

func (s *MetricsService) Start(ctx context.Context) error {
	if err := metrics.Register(s.app.registerer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	httpCfg := s.app.config.Monitor.HTTP
	if !httpCfg.Enabled {
		return nil
	}

	addr := net.JoinHostPort(httpCfg.Address, strconv.Itoa(httpCfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics endpoint: %w", err)
	}
	s.addr = ln.Addr().String()

	serveCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan error, 1)
	go func() {
		s.done <- metrics.Serve(serveCtx, ln, httpCfg.MetricsPath, s.app.gatherer)
	}()

	zerolog.Ctx(ctx).Info().Str("addr", s.addr).Str("path", httpCfg.MetricsPath).Msg("metrics endpoint listening")
	return nil
}

func (s *MetricsService) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	s.cancel = nil
	select {
	case err := <-s.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *MetricsService) Health(ctx context.Context) (HealthStatus, error) {
	if s.cancel == nil {
		return HealthStatus{State: HealthUnknown, Message: "metrics endpoint disabled"}, nil
	}
	return HealthStatus{
		State:   HealthHealthy,
		Message: "metrics endpoint running",
		Data:    map[string]interface{}{"addr": s.addr},
	}, nil
}

// WatcherService re-applies the log level when the config file changes.
// Nothing else is reconfigured at runtime.
type WatcherService struct {
	app     *DefaultApplication
	watcher *config.Watcher
}

func (s *WatcherService) Name() string {
	return ServiceWatcher
}

func (s *WatcherService) Start(ctx context.Context) error {
	if s.app.configFile == "" {
		return nil
	}

	watcher, err := config.NewWatcher(s.app.configFile, config.NewLoader(), s.app.logger)
	if err != nil {
		return err
	}
	watcher.OnConfigChange(func(oldConfig, newConfig *config.Config) {
		if oldConfig.Log.Level == newConfig.Log.Level {
			return
		}
		if err := logging.SetLevel(newConfig.Log.Level); err != nil {
			s.app.logger.Warn().Err(err).Msg("ignoring log level change")
			return
		}
		s.app.logger.Info().
			Str("from", string(oldConfig.Log.Level)).
			Str("to", string(newConfig.Log.Level)).
			Msg("log level changed")
	})
	if err := watcher.Start(); err != nil {
		watcher.Stop()
		return err
	}

	s.watcher = watcher
	return nil
}

func (s *WatcherService) Stop(ctx context.Context) error {
	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Stop()
	s.watcher = nil
	return err
}

func (s *WatcherService) Health(ctx context.Context) (HealthStatus, error) {
	if s.watcher == nil {
		return HealthStatus{State: HealthUnknown, Message: "config watcher disabled"}, nil
	}
	return HealthStatus{State: HealthHealthy, Message: "watching " + s.app.configFile}, nil
}

// InitService runs init once against the collaborators
type InitService struct {
	app *DefaultApplication
}

func (s *InitService) Name() string {
	return ServiceInit
}

func (s *InitService) Start(ctx context.Context) error {
	app := s.app
	sys := app.ActorSystem()
	timeout := app.config.Init.RequestTimeout

	hooks := make([]initd.Hook, len(app.config.Init.Hooks))
	for i, h := range app.config.Init.Hooks {
		hooks[i] = initd.Hook{Target: h.Target, Service: h.Service}
	}

	boot := initd.New(sys,
		storage.NewClient(sys, app.storageUnit, timeout),
		spawn.NewClient(sys, app.spawnUnit, timeout),
		registry.NewClient(sys, app.Discovery(), timeout),
		initd.Options{
			SearchDir:      app.config.Init.SearchDir,
			RequestTimeout: timeout,
			Hooks:          hooks,
		},
	)

	result, err := boot.Run(ctx)
	if err != nil {
		return err
	}

	app.mutex.Lock()
	app.boot = result
	app.mutex.Unlock()
	return nil
}

// SelfBounded reports true: init.request_timeout bounds each request and
// 0 waits forever, so the host start timeout must not cap the whole run.
func (s *InitService) SelfBounded() bool {
	return true
}

// Stop is a no-op: booted services live in the actor system and stop with it
func (s *InitService) Stop(ctx context.Context) error {
	return nil
}

func (s *InitService) Health(ctx context.Context) (HealthStatus, error) {
	boot := s.app.Boot()
	if boot == nil {
		return HealthStatus{State: HealthUnknown, Message: "init has not run"}, nil
	}
	return HealthStatus{
		State:   HealthHealthy,
		Message: "boot complete",
		Data: map[string]interface{}{
			"services":   len(boot.Services),
			"registries": len(boot.Registries),
			"hooks":      len(initd.Delivered(boot.Hooks)),
		},
	}, nil
}

func killUnit(sys core.ActorSystem, unit core.Capability) error {
	if sys == nil || !unit.Valid() || !unit.Alive() {
		return nil
	}
	return sys.Kill(unit)
}

func unitHealth(unit core.Capability) HealthStatus {
	if !unit.Valid() {
		return HealthStatus{State: HealthUnknown, Message: "not started"}
	}
	if !unit.Alive() {
		return HealthStatus{State: HealthStopped, Message: unit.String() + " stopped"}
	}
	return HealthStatus{State: HealthHealthy, Message: unit.String() + " running"}
}
