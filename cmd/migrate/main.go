// Applies the salon assistant's embedded schema migrations.
//
//	migrate            apply everything pending
//	migrate force <v>  clear a dirty state by pinning version v
package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/beautydesk/salon-assistant/migrations"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("migrate: %v", err)
	}
}

func run(args []string) error {
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("reach database: %w", err)
	}

	m, err := newMigrator(db)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()

	if len(args) >= 2 && args[0] == "force" {
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("force wants a numeric version, got %q", args[1])
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("force version %d: %w", version, err)
		}
		fmt.Printf("schema pinned at version %d\n", version)
		return nil
	}

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		fmt.Println("schema already up to date")
	case err != nil:
		return fmt.Errorf("apply migrations: %w", err)
	default:
		fmt.Println("schema migrated")
	}
	return nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("postgres driver: %w", err)
	}
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", dbDriver)
	if err != nil {
		return nil, fmt.Errorf("build migrator: %w", err)
	}
	return m, nil
}
