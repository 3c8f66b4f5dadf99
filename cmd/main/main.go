package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"stock-streamer/src/config"
	"stock-streamer/src/interfaces"
	"stock-streamer/src/logger"
	"stock-streamer/src/scheduler"
	"stock-streamer/src/server"
	"stock-streamer/src/session"
	"stock-streamer/src/snapshot"
	"stock-streamer/src/storage"
	"stock-streamer/src/upstream"
	"stock-streamer/src/utils"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file. A missing credential fails validation
	// here, before anything starts.
	config, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(config.Name)

	// 1. Snapshot cache
	var cache interfaces.ISnapshotCache

	switch config.Storage.DBType {
	case "postgres":
		cache, err = storage.NewPostgresCache(config.MConfig, appLogger)
	default:
		// Default to SQLite
		cache, err = storage.NewSQLiteCache(config.MConfig, appLogger)
	}

	if err != nil {
		appLogger.Critical("Failed to init snapshot cache: %v", err)
	}
	if err := cache.Initialize(); err != nil {
		appLogger.Critical("Failed to migrate snapshot cache: %v", err)
	}
	defer cache.Close()

	// 2. Core components
	store := snapshot.NewStore()
	sess := session.NewManager(config.Upstream, logger.NewLogger("SessionManager"))
	client := upstream.NewClient(config.Upstream, sess, logger.NewLogger("UpstreamClient"))
	hub := server.NewHub(store, logger.NewLogger("Hub"))
	hub.TokenPresent = sess.TokenPresent
	sess.Notify = hub.NotifyAuthStatus

	// 3. Warm restart: restore the cached snapshot as baseline so early
	// subscribers get a full snapshot before the first fetch lands.
	if config.Storage.RestoreOnStart {
		if snap, err := cache.LoadSnapshot(); err != nil {
			appLogger.Warning("Failed to restore cached snapshot: %v", err)
		} else if snap != nil {
			store.Replace(snap)
			appLogger.Info("Restored cached snapshot: %d records from %v", snap.Len(), snap.CapturedAt)
		}
	}

	// 4. Poll scheduler
	sched := scheduler.New(config.Poll, client, store, hub, logger.NewLogger("PollScheduler"))
	sched.Cache = cache
	if config.Poll.MarketHoursOnly {
		sched.Market = utils.NewMarketScheduler(config.Market, logger.NewLogger("MarketScheduler"))
	}
	hub.RequestCycle = sched.TriggerNow

	// 5. HTTP server
	srv := server.NewStreamServer(config.MConfig, hub, sess, store, appLogger)
	srv.Refresh = func() {
		if _, err := sess.AcquireToken(true); err != nil {
			appLogger.Warning("Manual refresh: re-authentication failed: %v", err)
			return
		}
		sched.TriggerNow()
	}

	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("Server failed: %v", err)
		}
	}()

	// 6. Start polling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	appLogger.Info("Shutting down...")
	sched.Stop()
	srv.Stop()
}
