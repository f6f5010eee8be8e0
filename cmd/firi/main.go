package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/firi-app/firi/internal/cache"
	"github.com/firi-app/firi/internal/meter"
	"github.com/firi-app/firi/internal/oracle"
	"github.com/firi-app/firi/internal/session"
	"github.com/firi-app/firi/internal/state"
	"github.com/firi-app/firi/internal/store"
	"github.com/firi-app/firi/internal/ui"
)

var version = "0.1.0"

func main() {
	_ = godotenv.Load()

	proxyURL := flag.String("proxy", envOr("FIRI_PROXY_URL", "http://localhost:8790"), "Base URL of the firi proxy")
	dsn := flag.String("dsn", os.Getenv("FIRI_DATABASE_URL"), "PostgreSQL DSN (migrate subcommand only; normally handed out by the proxy)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "firi [--proxy URL] | migrate up|down | version\n")
	}
	flag.Parse()

	args := flag.Args()
	if len(args) > 0 {
		switch args[0] {
		case "version":
			fmt.Println("firi", version)
			return
		case "migrate":
			runMigrate(args, *dsn)
			return
		}
	}

	ctx := context.Background()
	client := oracle.New(*proxyURL)

	cfgCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	cfg, err := client.Config(cfgCtx)
	cancel()
	if err != nil {
		// The app is unusable without its configuration. Show the blocking
		// error screen rather than a half-working UI.
		st := state.NewStore(state.AppState{
			AuthStatus: state.AuthSignedOut,
			View:       state.ViewDashboard,
			FatalError: "Could not reach the firi proxy at " + *proxyURL + ": " + err.Error(),
		})
		if err := ui.Run(ctx, st, nil, version); err != nil {
			log.Fatal(err)
		}
		os.Exit(1)
	}

	mig, err := store.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("migrations init failed: %v", err)
	}
	migCtx, cancelMig := context.WithTimeout(ctx, 30*time.Second)
	if err := mig.Up(migCtx); err != nil && err != store.ErrNoChange {
		cancelMig()
		log.Fatalf("migrations failed: %v", err)
	}
	cancelMig()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	st := state.NewStore(state.AppState{
		AuthStatus: state.AuthSignedOut,
		View:       state.ViewDashboard,
	})
	users := store.NewUserRepo(db)
	projects := store.NewProjectRepo(db)
	tokens := meter.New(st, users)
	queries := cache.NewRecentQueries(cache.DefaultPath())
	ctrl := session.NewController(st, client, projects, users, tokens, queries)

	if err := ui.Run(ctx, st, ctrl, version); err != nil {
		log.Fatal(err)
	}
}

func runMigrate(args []string, dsn string) {
	if len(args) < 2 {
		log.Fatal("migrate requires 'up' or 'down'")
	}
	if dsn == "" {
		log.Fatal("migrate needs --dsn or FIRI_DATABASE_URL")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	mig, err := store.NewMigrator(dsn)
	if err != nil {
		log.Fatal(err)
	}
	switch args[1] {
	case "up":
		if err := mig.Up(ctx); err != nil && err != store.ErrNoChange {
			log.Fatal(err)
		}
		fmt.Println("Migrations applied")
	case "down":
		if err := mig.Down(ctx); err != nil && err != store.ErrNoChange {
			log.Fatal(err)
		}
		fmt.Println("Migrations rolled back")
	default:
		log.Fatal("unknown migrate action; use up|down")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
