// WrecksShop - Ark: Survival Ascended shop backend.
//
// WrecksShop maintains an append-only point ledger, delivers purchased
// items to Ark servers over RCON, retries failed deliveries in the
// background, exposes a REST API for shop frontends, and publishes
// telemetry via MQTT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/bebewat/wrecksshop-main/internal/api"
	"github.com/bebewat/wrecksshop-main/internal/cli"
	"github.com/bebewat/wrecksshop-main/internal/config"
	"github.com/bebewat/wrecksshop-main/internal/db"
	"github.com/bebewat/wrecksshop-main/internal/delivery"
	"github.com/bebewat/wrecksshop-main/internal/events"
	"github.com/bebewat/wrecksshop-main/internal/notify"
	"github.com/bebewat/wrecksshop-main/internal/rcon"
	"github.com/bebewat/wrecksshop-main/internal/reward"
	"github.com/bebewat/wrecksshop-main/internal/shop"
	"github.com/bebewat/wrecksshop-main/internal/telemetry"
	"github.com/bebewat/wrecksshop-main/internal/util"
)

const (
	AppName    = "WrecksShop"
	AppVersion = "1.0.0"
	Banner     = `
 __          __            _        _____ _
 \ \        / /           | |      / ____| |
  \ \  /\  / / __ ___  ___| | _____| (___ | |__   ___  _ __
   \ \/  \/ / '__/ _ \/ __| |/ / __|\___ \| '_ \ / _ \| '_ \
    \  /\  /| | |  __/ (__|   <\__ \____) | | | | (_) | |_) |
     \/  \/ |_|  \___|\___|_|\_\___/_____/|_| |_|\___/| .__/
                                                      | |
                                                      |_|  v%s
 Ark: Survival Ascended Shop Backend
`
)

// serverRegistry adapts the live configuration to the map-based server
// lookups the shop and delivery components need.
type serverRegistry struct {
	cfg *config.Config
}

func (r serverRegistry) ServerForMap(mapName string) (config.ServerEntry, bool) {
	for _, s := range r.cfg.GetShopData().Servers {
		if s.Map == mapName {
			return s, true
		}
	}
	return config.ServerEntry{}, false
}

func (r serverRegistry) All() []config.ServerEntry {
	return r.cfg.GetShopData().Servers
}

func main() {
	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	// Secrets may live in a .env file next to the binary.
	if err := godotenv.Load(); err == nil {
		fmt.Println("loaded environment from .env")
	}

	// Initialize logger with defaults first (reconfigured after config load)
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting WrecksShop")

	cfg, err := config.Load(config.DefaultConfigDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Re-initialize logger with config-based settings
	appData := cfg.GetApplicationData()
	logCfg := util.LogConfig{
		Level:      appData.Logging.Level,
		Directory:  appData.Logging.Directory,
		MaxSizeMB:  appData.Logging.MaxSizeMB,
		MaxBackups: appData.Logging.MaxBackups,
		Console:    true,
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		if cfg.IsFirstRun() {
			log.Info().Str("path", cfg.Path()).Msg("first run: a default config was written, fill in your servers and restart")
			return
		}
		log.Fatal().Msg("configuration validation failed, please fix the errors above")
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shopData := cfg.GetShopData()

	// Storage
	database, err := db.NewDatabase(shopData.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer database.Close()

	ledger, err := db.NewLedgerStore(database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize ledger")
	}
	queue, err := db.NewDeliveryStore(database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize delivery queue")
	}
	players, err := db.NewPlayerStore(database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize player links")
	}

	// Shop catalog
	catalog, err := shop.LoadCatalog(shopData.CatalogPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load shop catalog")
	}

	// Core components
	eventBus := events.NewEventBus()

	rconMgr := rcon.NewManager(rcon.ManagerOptions{
		Timeout:    time.Duration(shopData.RCONTimeoutSec) * time.Second,
		Attempts:   shopData.RCONRetryAttempts,
		RetryDelay: time.Duration(shopData.RCONRetryDelayMS) * time.Millisecond,
	})
	defer rconMgr.CloseAll()

	registry := serverRegistry{cfg: cfg}
	discount := shop.NoDiscount
	if len(shopData.Discounts) > 0 {
		discount = shop.RoleDiscounts(shopData.Discounts)
	}
	purchases := shop.NewService(catalog, registry, players, ledger, queue, rconMgr, discount, eventBus)

	sweepInterval := time.Duration(appData.Timers.RedeliverySweepInterval) * time.Second
	sweeper := delivery.NewSweeper(queue, registry, rconMgr, sweepInterval, eventBus)

	rewardInterval := time.Duration(appData.Timers.RewardInterval) * time.Second
	rewarder := reward.NewRewarder(ledger, registry.All, rconMgr, shopData.RewardPoints, rewardInterval, true)

	// Discord notifications subscribe themselves to the bus.
	notify.NewDiscordNotifier(cfg, eventBus)

	var mqttHandler *telemetry.MQTTHandler
	if appData.MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg, eventBus)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	apiServer := api.NewServer(cfg, eventBus, api.Dependencies{
		Ledger:    ledger,
		Queue:     queue,
		Players:   players,
		Catalog:   catalog,
		Purchases: purchases,
		Sweeper:   sweeper,
		Executor:  rconMgr,
	})

	cliHandler := cli.NewCLI(cfg, eventBus, ledger, queue, catalog, sweeper, rconMgr)

	// ---------------------------------------------------------------
	// Launch all concurrent tasks
	// ---------------------------------------------------------------
	var wg sync.WaitGroup
	errCh := make(chan error, 5)

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Int("port", shopData.APIPort).Msg("starting REST API server")
		if err := apiServer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("API server failed")
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		rewarder.Run(ctx)
	}()

	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting interactive console")
		cliHandler.Start(ctx)
	}()

	// ---------------------------------------------------------------
	// Graceful shutdown handling
	// ---------------------------------------------------------------
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	shutdownCh := make(chan struct{}, 1)
	eventBus.Subscribe(events.EventShutdown, func(events.Event) {
		select {
		case shutdownCh <- struct{}{}:
		default:
		}
	})

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-shutdownCh:
		log.Info().Msg("shutdown requested from console")
	case err := <-errCh:
		log.Error().Err(err).Msg("critical error, initiating shutdown")
	}

	log.Info().Msg("initiating graceful shutdown...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	rconMgr.CloseAll()
	log.Info().Msg("WrecksShop stopped")
}
