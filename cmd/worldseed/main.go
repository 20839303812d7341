// worldseed loads the YAML world seed plus the JSON templates and writes
// rooms and objects into the configured PostgreSQL database. Seeding is
// idempotent: entities whose ids already exist are left alone, so it is
// safe to run against a live database.
//
// Usage:
//
//	go run ./cmd/worldseed [-config path]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/duskmud/server/internal/config"
	"github.com/duskmud/server/internal/core/event"
	"github.com/duskmud/server/internal/data"
	"github.com/duskmud/server/internal/persist"
	"github.com/duskmud/server/internal/world"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", os.Getenv("DUSKMUD_CONFIG"), "path to TOML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.InMemory() {
		return fmt.Errorf("worldseed needs a real database; set DATABASE_URL")
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	if _, err := persist.Migrate(ctx, db.Pool); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	monsters, err := data.LoadMonsterTable(filepath.Join(cfg.Paths.Data, "monsters.json"))
	if err != nil {
		return fmt.Errorf("load monster templates: %w", err)
	}
	items, err := data.LoadItemTable(filepath.Join(cfg.Paths.Data, "items.json"))
	if err != nil {
		return fmt.Errorf("load item templates: %w", err)
	}
	wf, err := data.LoadWorld(filepath.Join(cfg.Paths.Data, "world.yaml"))
	if err != nil {
		return fmt.Errorf("load world seed: %w", err)
	}

	stores := persist.NewStores(db)
	bus := event.NewBus(log.Named("event"))
	mgr := world.NewManager(stores, bus, monsters, items, nil, log.Named("world"))
	if err := mgr.Hydrate(ctx); err != nil {
		return fmt.Errorf("hydrate world: %w", err)
	}

	rooms, objects, err := mgr.Seed(ctx, wf)
	if err != nil {
		return fmt.Errorf("seed world: %w", err)
	}

	fmt.Printf("rooms:   %d created, %d total\n", rooms, mgr.RoomCount())
	fmt.Printf("objects: %d created, %d total\n", objects, mgr.ObjectCount())
	return nil
}
