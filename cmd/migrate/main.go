package main

import (
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/cptrack/cptrack-api/pkg/config"
)

func main() {
	var (
		path  = flag.String("path", "migrations", "directory holding migration files")
		down  = flag.Bool("down", false, "roll back one migration instead of migrating up")
		steps = flag.Int("steps", 0, "apply exactly N migrations (negative rolls back)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.User, cfg.Database.Password,
		cfg.Database.Host, cfg.Database.Port,
		cfg.Database.Name, cfg.Database.SSLMode,
	)

	m, err := migrate.New("file://"+*path, dbURL)
	if err != nil {
		log.Fatalf("failed to init migrations: %v", err)
	}
	defer m.Close()

	switch {
	case *steps != 0:
		err = m.Steps(*steps)
	case *down:
		err = m.Steps(-1)
	default:
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("migration failed: %v", err)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		log.Fatalf("failed to read version: %v", verr)
	}
	log.Printf("migrations applied: version=%d dirty=%v", version, dirty)
}
