package config_test

import (
	"os"
	"testing"

	"billflow/internal/config"
)

func TestLoad_MigrationsDir(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/billflow_test")
	t.Setenv("MIGRATIONS_DIR", "")
	os.Unsetenv("MIGRATIONS_DIR")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MigrationsDir != "migrations" {
		t.Errorf("default migrations dir: got %q", cfg.MigrationsDir)
	}

	t.Setenv("MIGRATIONS_DIR", "db/migrations")
	cfg, err = config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MigrationsDir != "db/migrations" {
		t.Errorf("explicit migrations dir: got %q", cfg.MigrationsDir)
	}

	// An explicitly empty value disables startup migrations.
	t.Setenv("MIGRATIONS_DIR", "")
	cfg, err = config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MigrationsDir != "" {
		t.Errorf("empty migrations dir should stay empty, got %q", cfg.MigrationsDir)
	}
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := config.Load(); err == nil {
		t.Errorf("expected validation error without DATABASE_URL")
	}
}
