// Seeds one active user per reviewer role so a freshly migrated database
// can run the full approval workflow. Safe to re-run: existing emails are
// left untouched.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cptrack/cptrack-api/internal/models"
	"github.com/cptrack/cptrack-api/pkg/config"
	"github.com/cptrack/cptrack-api/pkg/database"
)

type seedUser struct {
	Email    string
	FullName string
	Role     models.UserRole
}

func defaultSeed(domain string) []seedUser {
	return []seedUser{
		{Email: "superadmin@" + domain, FullName: "Super Admin", Role: models.RoleSuperAdmin},
		{Email: "admin@" + domain, FullName: "Workflow Admin", Role: models.RoleAdmin},
		{Email: "sps@" + domain, FullName: "SPS Reviewer", Role: models.RoleSPS},
		{Email: "vpacad@" + domain, FullName: "VP for Academics", Role: models.RoleVPAcad},
		{Email: "dean@" + domain, FullName: "College Dean", Role: models.RoleDean},
		{Email: "finance@" + domain, FullName: "Finance Officer", Role: models.RoleFinance},
		{Email: "president@" + domain, FullName: "University President", Role: models.RolePresident},
		{Email: "requisitioner@" + domain, FullName: "Sample Requisitioner", Role: models.RoleRequisitioner},
	}
}

func main() {
	var (
		domain  string
		dryRun  bool
		timeout time.Duration
	)
	flag.StringVar(&domain, "domain", "uni.edu", "Email domain for seeded accounts")
	flag.BoolVar(&dryRun, "dry-run", false, "Print planned inserts without writing")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	users := defaultSeed(strings.TrimPrefix(domain, "@"))
	var inserted, skipped int
	for _, u := range users {
		var exists bool
		if err := db.GetContext(ctx, &exists,
			`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, u.Email); err != nil {
			log.Fatalf("check %s: %v", u.Email, err)
		}
		if exists {
			skipped++
			continue
		}
		if dryRun {
			fmt.Printf("would insert %-14s %s\n", u.Role, u.Email)
			inserted++
			continue
		}
		now := time.Now().UTC()
		if _, err := db.ExecContext(ctx,
			`INSERT INTO users (id, email, full_name, role, active, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, TRUE, $5, $5)`,
			uuid.NewString(), u.Email, u.FullName, u.Role, now); err != nil {
			log.Fatalf("insert %s: %v", u.Email, err)
		}
		inserted++
	}

	fmt.Printf("Seed complete: %d inserted, %d already present\n", inserted, skipped)
}
