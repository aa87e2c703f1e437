package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/officeverse/roomcore/internal/config"
	"github.com/officeverse/roomcore/internal/data"
	"github.com/officeverse/roomcore/internal/interact"
	"github.com/officeverse/roomcore/internal/mapwatch"
	"github.com/officeverse/roomcore/internal/persist"
	"github.com/officeverse/roomcore/internal/room"
	"github.com/officeverse/roomcore/internal/scripting"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ---------- Console output helpers ----------

func printBanner(roomName string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m              roomcore  v0.1.0             \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mroom:\033[0m %s\n\n", roomName)
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

// ---------- Startup ----------

type services struct {
	table  *data.InteractableTable
	engine *scripting.Engine
	db     *persist.DB
}

func (s *services) close() {
	if s.engine != nil {
		s.engine.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

// startServices loads the type table, the Lua hooks and the database in parallel.
func startServices(ctx context.Context, cfg *config.Config, log *zap.Logger) (*services, error) {
	svc := &services{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		t, err := data.LoadInteractableTable(cfg.Data.TypesPath)
		if err != nil {
			return fmt.Errorf("load interactable types: %w", err)
		}
		svc.table = t
		return nil
	})
	if cfg.Scripting.Enabled {
		g.Go(func() error {
			e, err := scripting.NewEngine(cfg.Scripting.Dir, log)
			if err != nil {
				return fmt.Errorf("lua engine: %w", err)
			}
			svc.engine = e
			return nil
		})
	}
	if cfg.Database.Enabled {
		g.Go(func() error {
			db, err := persist.NewDB(gctx, cfg.Database, log)
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			svc.db = db
			if err := persist.RunMigrations(gctx, db); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		svc.close()
		return nil, err
	}
	return svc, nil
}

func run() error {
	cfgPath := "config/roomcore.toml"
	if p := os.Getenv("ROOMCORE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Room.Name)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	printSection("services")
	svc, err := startServices(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer svc.close()
	printStat("interactable types", svc.table.Count())
	if svc.engine != nil {
		printOK("lua hooks loaded")
	}
	if svc.db != nil {
		printOK("PostgreSQL connected, migrations applied")
	}
	fmt.Println()

	deps := room.Deps{Table: svc.table, Logger: log}
	if svc.engine != nil {
		deps.Hooks = svc.engine
	}
	if svc.db != nil {
		deps.Log = persist.NewInteractionLogRepo(svc.db)
	}

	printSection("room")
	sess, err := room.Open(ctx, room.ConfigFrom(cfg), deps)
	if err != nil {
		return fmt.Errorf("open room: %w", err)
	}
	defer sess.Close()
	printStat("interactables", sess.Index().Len())

	sess.Subscribe(func(ev interact.Event) {
		fields := []zap.Field{zap.String("event", string(ev.Type)), zap.String("object", ev.ObjectID)}
		if ev.Position != nil {
			fields = append(fields, zap.Stringer("at", *ev.Position))
		}
		log.Info("interaction event", fields...)
	})

	var reloads <-chan string
	if cfg.Room.Watch {
		w, err := mapwatch.New(log, cfg.Room.MapPath)
		if err != nil {
			log.Warn("map watcher disabled", zap.Error(err))
		} else {
			defer w.Close()
			reloads = w.Events
			printOK("watching map for changes")
		}
	}
	fmt.Println()

	commands := make(chan command)
	go readCommands(os.Stdin, commands, log)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	flushEvery := cfg.Database.FlushInterval
	if flushEvery <= 0 {
		flushEvery = 5 * time.Second
	}
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	printSection("ready")
	printReady("commands: x,y move · e trigger closest · e <id> trigger · l list · q quit")
	fmt.Println()

	for {
		select {
		case cmd, ok := <-commands:
			if !ok || cmd.kind == cmdQuit {
				flushLog(sess, log)
				return nil
			}
			handleCommand(sess, cmd, os.Stdout)

		case path, ok := <-reloads:
			if !ok {
				reloads = nil
				continue
			}
			rctx, rcancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := sess.Reload(rctx); err != nil {
				log.Error("map reload failed", zap.String("path", path), zap.Error(err))
			}
			rcancel()

		case <-ticker.C:
			flushLog(sess, log)

		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			flushLog(sess, log)
			return nil
		}
	}
}

func flushLog(sess *room.Session, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := sess.FlushLog(ctx); err != nil {
		log.Warn("interaction log flush failed", zap.Int("pending", sess.PendingLog()), zap.Error(err))
	}
}

func readCommands(f *os.File, out chan<- command, log *zap.Logger) {
	defer close(out)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		cmd, err := parseCommand(sc.Text())
		if err != nil {
			log.Warn("bad command", zap.Error(err))
			continue
		}
		if cmd.kind == cmdNone {
			continue
		}
		out <- cmd
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
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
