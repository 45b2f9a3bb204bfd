// Package main is a diagnostic tool for testing database connectivity and inspecting live
// registry data. It connects with the server's configuration, prints the schema version
// and a per-status summary of organizers, events and submissions, and exits non-zero on
// any failure so it can gate a deployment step.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"github.com/event-registry/event-registry/internal/config"
	"github.com/event-registry/event-registry/internal/db"
)

type statusCount struct {
	Status string `db:"status"`
	Count  int64  `db:"count"`
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 2, 1, cfg.Database.ConnMaxLifetime)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	fmt.Printf("Schema version: %d (dirty: %v)\n", version, dirty)

	x := sqlx.NewDb(database, "postgres")
	for _, table := range []string{"organizers", "events", "submissions"} {
		var rows []statusCount
		// #nosec G201 -- table names come from the fixed list above
		q := fmt.Sprintf("SELECT status, COUNT(*) AS count FROM %s WHERE is_deleted = false GROUP BY status ORDER BY status", table)
		if err := x.Select(&rows, q); err != nil {
			log.Fatalf("Query on %s failed: %v", table, err)
		}

		fmt.Printf("\n=== %s ===\n", table)
		if len(rows) == 0 {
			fmt.Println("(none)")
		}
		for _, r := range rows {
			fmt.Printf("%-16s %d\n", r.Status, r.Count)
		}
	}

	var pending int64
	if err := x.Get(&pending, "SELECT COUNT(*) FROM email_outbox WHERE status = 'pending'"); err != nil {
		log.Fatalf("Query on email_outbox failed: %v", err)
	}
	fmt.Printf("\nQueued verification emails: %d\n", pending)
}
