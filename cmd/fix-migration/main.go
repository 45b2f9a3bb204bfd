// Package main is a repair tool for dirty migration state in the registry database.
// Dirty state occurs when golang-migrate marks a version as in progress and the run is
// interrupted before it completes. The tool reads the current version and, when it is
// dirty, forces that version clean so the next server start can retry.
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/event-registry/event-registry/internal/config"
	"github.com/event-registry/event-registry/internal/db"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 1, 1, cfg.Database.ConnMaxLifetime)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	log.Println("Connected to database successfully")

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to check migration state: %v", err)
	}
	log.Printf("Current migration state: version=%d, dirty=%v", version, dirty)

	if !dirty {
		log.Println("Migration state is already clean")
		return
	}

	log.Println("Fixing dirty migration state...")
	if err := db.ForceMigrationVersion(database, int(version)); err != nil {
		log.Fatalf("Failed to fix dirty state: %v", err)
	}

	version, dirty, err = db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to check final migration state: %v", err)
	}
	log.Printf("Final migration state: version=%d, dirty=%v", version, dirty)
}
