package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/duskmud/server/internal/config"
	"github.com/duskmud/server/internal/core/event"
	"github.com/duskmud/server/internal/core/sched"
	"github.com/duskmud/server/internal/data"
	"github.com/duskmud/server/internal/game"
	"github.com/duskmud/server/internal/locale"
	gonet "github.com/duskmud/server/internal/net"
	"github.com/duskmud/server/internal/persist"
	"github.com/duskmud/server/internal/scripting"
	"github.com/duskmud/server/internal/world"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner() {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m             DuskMUD  v0.1.0               \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m      multi-user dungeon · Go server       \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := flag.String("config", os.Getenv("DUSKMUD_CONFIG"), "path to TOML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging, cfg.Paths.LogDir)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	bus := event.NewBus(log.Named("event"))
	observeEvents(bus, log.Named("audit"))

	// 3. Storage: PostgreSQL with migrations, or the in-memory store
	printSection("storage")

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var stores *persist.Stores
	if cfg.Database.InMemory() {
		stores = persist.NewMemStores()
		printOK("in-memory store (volatile)")
	} else {
		db, err := persist.NewDB(initCtx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("postgresql connected")

		ver, err := persist.Migrate(initCtx, db.Pool)
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK(fmt.Sprintf("schema at version %d", ver))
		stores = persist.NewStores(db)
	}
	fmt.Println()

	// 4. Static data: templates, translations, scripts
	printSection("data")

	monsters, err := data.LoadMonsterTable(filepath.Join(cfg.Paths.Data, "monsters.json"))
	if err != nil {
		return fmt.Errorf("load monster templates: %w", err)
	}
	printStat("monster templates", monsters.Count())

	items, err := data.LoadItemTable(filepath.Join(cfg.Paths.Data, "items.json"))
	if err != nil {
		return fmt.Errorf("load item templates: %w", err)
	}
	printStat("item templates", items.Count())

	catalog, err := locale.LoadDir(cfg.Paths.Translations)
	if err != nil {
		return fmt.Errorf("load translations: %w", err)
	}
	printOK("translations loaded")

	scripts, err := scripting.NewEngine(cfg.Paths.Scripts, log.Named("lua"))
	if err != nil {
		return fmt.Errorf("lua engine: %w", err)
	}
	defer scripts.Close()
	if scripts.Scripted() {
		printOK("monster ai script active")
	} else {
		printOK("built-in monster ai")
	}
	fmt.Println()

	// 5. World: hydrate from storage, seed when empty, spawn monsters
	printSection("world")

	worldMgr := world.NewManager(stores, bus, monsters, items, rng, log.Named("world"))
	if err := worldMgr.Hydrate(initCtx); err != nil {
		return fmt.Errorf("hydrate world: %w", err)
	}
	if worldMgr.RoomCount() == 0 {
		seedPath := filepath.Join(cfg.Paths.Data, "world.yaml")
		wf, err := data.LoadWorld(seedPath)
		if err != nil {
			return fmt.Errorf("load world seed: %w", err)
		}
		if _, _, err := worldMgr.Seed(initCtx, wf); err != nil {
			return fmt.Errorf("seed world: %w", err)
		}
		printOK("seeded world from " + seedPath)
	}
	printStat("rooms", worldMgr.RoomCount())
	printStat("objects", worldMgr.ObjectCount())

	spawned, err := worldMgr.SpawnAllRooms(initCtx)
	if err != nil {
		return fmt.Errorf("spawn monsters: %w", err)
	}
	printStat("monsters spawned", spawned)
	printStat("monsters total", worldMgr.MonsterCount())
	fmt.Println()

	// 6. Engine: sessions, commands, combat, scheduler events
	scheduler := sched.New(log.Named("sched"))
	scheduler.AnnounceOn(bus)
	eng, err := game.NewEngine(game.Deps{
		Cfg:     cfg,
		Log:     log,
		Stores:  *stores,
		Bus:     bus,
		World:   worldMgr,
		Catalog: catalog,
		Items:   items,
		Scripts: scripts,
		Sched:   scheduler,
		RNG:     rng,
	})
	if err != nil {
		return fmt.Errorf("game engine: %w", err)
	}

	// 7. Transports
	gate := gonet.NewGate(64, log.Named("net"))
	tcpSrv, err := gonet.NewServer(cfg.Server.Addr(), gate,
		cfg.Server.OutQueueSize, cfg.Server.IdleTimeout, cfg.Game.DefaultLocale, log.Named("net"))
	if err != nil {
		return fmt.Errorf("tcp server: %w", err)
	}
	wsSrv := gonet.NewWSServer(cfg.Server.WSAddr(), gate,
		cfg.Server.OutQueueSize, cfg.Server.IdleTimeout, cfg.Game.DefaultLocale, log.Named("ws"))

	printSection("ready")
	printReady("tcp listening on " + tcpSrv.Addr().String())
	printReady("websocket listening on " + cfg.Server.WSAddr() + "/ws")
	printReady("scheduler phases 0/15/30/45")
	fmt.Println()

	// 8. Run everything until a signal arrives
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tcpSrv.AcceptLoop()
		return nil
	})
	g.Go(wsSrv.ListenAndServe)
	g.Go(func() error {
		return eng.Run(gctx, gate)
	})
	g.Go(func() error {
		if err := scheduler.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		tcpSrv.Shutdown()
		shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer cancel()
		return wsSrv.Shutdown(shCtx)
	})

	err = g.Wait()
	log.Info("shutting down, draining sessions")

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace+10*time.Second)
	defer cancelDrain()
	eng.Shutdown(drainCtx)

	log.Info("server stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// observeEvents logs the game's lifecycle events. Handlers run on the
// publisher's goroutine, so they only write a log line.
func observeEvents(bus *event.Bus, log *zap.Logger) {
	event.Subscribe(bus, func(ev event.PlayerJoined) {
		log.Info("player joined",
			zap.String("username", ev.Username),
			zap.String("room", ev.RoomID))
	})
	event.Subscribe(bus, func(ev event.PlayerLeft) {
		log.Info("player left",
			zap.String("username", ev.Username),
			zap.String("room", ev.RoomID))
	})
	event.Subscribe(bus, func(ev event.CombatStarted) {
		log.Info("combat started",
			zap.String("instance", ev.InstanceID),
			zap.String("room", ev.RoomID),
			zap.Int64s("players", ev.PlayerIDs),
			zap.Int64s("monsters", ev.MonsterIDs))
	})
	event.Subscribe(bus, func(ev event.CombatEnded) {
		log.Info("combat ended",
			zap.String("instance", ev.InstanceID),
			zap.String("victor", ev.Victor),
			zap.Int("turns", ev.Turns))
	})
	event.Subscribe(bus, func(ev event.MonsterKilled) {
		log.Info("monster killed",
			zap.String("template", ev.TemplateID),
			zap.String("room", ev.RoomID),
			zap.Int64("killer", ev.KillerID))
	})
	event.Subscribe(bus, func(ev event.PlayerMoved) {
		log.Debug("player moved",
			zap.String("username", ev.Username),
			zap.String("from", ev.FromRoom),
			zap.String("to", ev.ToRoom),
			zap.String("reason", ev.Reason))
	})
}

func newLogger(cfg config.LoggingConfig, logDir string) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		zapCfg = zap.NewProductionConfig()
		zapCfg.OutputPaths = []string{filepath.Join(logDir, "duskmud.log")}
	} else if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
