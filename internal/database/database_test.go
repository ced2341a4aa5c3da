package database

import (
	"strings"
	"testing"

	"demand-trend/internal/config"
	"demand-trend/internal/models"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.Config
		contains []string
	}{
		{
			name:     "explicit url wins",
			cfg:      config.Config{DBDriver: "mysql", DatabaseURL: "u:p@tcp(db:3306)/x", DBHost: "ignored"},
			contains: []string{"u:p@tcp(db:3306)/x"},
		},
		{
			name:     "mysql",
			cfg:      config.Config{DBDriver: "mysql", DBHost: "db", DBPort: 3307, DBUser: "demand", DBPassword: "secret", DBName: "hist"},
			contains: []string{"demand:secret@tcp(db:3307)/hist", "parseTime=true", "charset=utf8mb4"},
		},
		{
			name:     "postgres",
			cfg:      config.Config{DBDriver: "postgres", DBHost: "pg", DBPort: 5432, DBUser: "demand", DBName: "hist", DBSSLMode: "disable"},
			contains: []string{"host=pg", "port=5432", "dbname=hist", "sslmode=disable"},
		},
		{
			name:     "sqlite",
			cfg:      config.Config{DBDriver: "sqlite", DBName: "local"},
			contains: []string{"local.db"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := DSN(&tt.cfg)
			for _, want := range tt.contains {
				if !strings.Contains(dsn, want) {
					t.Errorf("DSN %q missing %q", dsn, want)
				}
			}
		})
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open("oracle", "x", "silent"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestOpenSQLiteAndMigrate(t *testing.T) {
	db, err := Open("sqlite", "file:migrate_test?mode=memory&cache=shared", "silent")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !db.Migrator().HasTable(&models.DemandHistory{}) {
		t.Error("demand_history table missing")
	}
	if !db.Migrator().HasTable(&models.UploadBatch{}) {
		t.Error("upload_batches table missing")
	}
	if !db.Migrator().HasIndex(&models.DemandHistory{}, "idx_dh_slice") {
		t.Error("slice index missing")
	}
}
