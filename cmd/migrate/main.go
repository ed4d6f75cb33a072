package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"tasktrail.io/internal/audit"
	"tasktrail.io/internal/config"
	"tasktrail.io/internal/migrate"
	"tasktrail.io/internal/obs"
	"tasktrail.io/internal/seed"
	"tasktrail.io/internal/store/pg"
)

const usage = "usage: migrate [-dsn DSN] [up|down|status|pending|seed|audit]"

func main() {
	log := obs.Logger()
	if err := config.LoadEnv(); err != nil {
		log.WithError(err).Fatal("load environment")
	}
	var (
		dsn    = flag.String("dsn", config.DatabaseDSN(), "PostgreSQL DSN")
		table  = flag.String("table", "", "Migrations bookkeeping table")
		limit  = flag.Int("limit", 20, "Entries printed by the audit command")
		offset = flag.Int("offset", 0, "Entries skipped by the audit command")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or TASKTRAIL_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal(usage)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		log.WithError(err).Fatal("open db")
	}
	defer store.Close()

	mgr := migrate.NewManager(store.DB(), migrate.WithMigrationsTable(*table))

	switch cmd := flag.Arg(0); cmd {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		if err == nil && len(applied) == 0 {
			fmt.Println("schema is up to date")
		}
	case "down":
		var last string
		last, err = mgr.Down(ctx)
		if errors.Is(err, migrate.ErrNothingApplied) {
			fmt.Println("nothing to roll back")
			err = nil
		} else if err == nil {
			fmt.Println("rolled back", last)
		}
	case "status", "pending":
		var names []string
		if cmd == "status" {
			names, err = mgr.Status(ctx)
		} else {
			names, err = mgr.Pending(ctx)
		}
		for _, name := range names {
			fmt.Println(name)
		}
	case "seed":
		var res seed.Result
		res, err = seed.Run(ctx, store.Accounts(), store.Tasks())
		if err == nil {
			fmt.Printf("seeded %d organizations, %d users, %d assignments, %d tasks\n",
				res.Organizations, res.Users, res.Assignments, res.Tasks)
		}
	case "audit":
		err = printAudit(ctx, audit.NewRecorder(store.Audit()), *limit, *offset)
	default:
		log.Fatalf("unknown command %q\n%s", cmd, usage)
	}
	if err != nil {
		log.WithError(err).Fatalf("migrate %s", flag.Arg(0))
	}
}

// printAudit writes one page of the global audit trail as JSON lines.
func printAudit(ctx context.Context, recorder *audit.Recorder, limit, offset int) error {
	entries, err := recorder.QueryPaginated(ctx, limit, offset)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}
