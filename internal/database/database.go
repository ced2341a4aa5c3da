package database

import (
	"database/sql"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"demand-trend/internal/config"
	"demand-trend/internal/models"

	"github.com/glebarez/sqlite"
	gomysql "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Initialize opens the configured backend, tunes the pool and migrates the
// history tables.
func Initialize(cfg *config.Config) (*gorm.DB, error) {
	dsn := DSN(cfg)
	db, err := Open(cfg.DBDriver, dsn, cfg.DBLogLevel)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.DBDriver == "sqlite" {
		// sqlite serialises writers; one connection avoids SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Printf("Database initialized successfully (%s)", cfg.DBDriver)
	return db, nil
}

// Open connects gorm to one of the supported drivers without migrating.
func Open(driver, dsn, logLevel string) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(parseLogLevel(logLevel))}

	var dialector gorm.Dialector
	switch driver {
	case "mysql", "":
		dialector = mysql.Open(dsn)
	case "postgres":
		// lib/pq owns the connection; gorm only speaks the dialect over it
		conn, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres connection: %w", err)
		}
		if err := conn.Ping(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to ping postgres: %w", err)
		}
		dialector = postgres.New(postgres.Config{Conn: conn})
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}

	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}
	return db, nil
}

// Migrate creates or updates the demand_history and upload_batches tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.DemandHistory{}, &models.UploadBatch{}); err != nil {
		return fmt.Errorf("failed to migrate history tables: %w", err)
	}
	return nil
}

// DSN returns DATABASE_URL when set, otherwise builds one for the driver from
// the discrete connection settings.
func DSN(cfg *config.Config) string {
	if cfg.DatabaseURL != "" {
		return cfg.DatabaseURL
	}
	switch cfg.DBDriver {
	case "postgres":
		parts := []string{
			"host=" + cfg.DBHost,
			"port=" + strconv.Itoa(cfg.DBPort),
			"user=" + cfg.DBUser,
			"dbname=" + cfg.DBName,
			"sslmode=" + cfg.DBSSLMode,
		}
		if cfg.DBPassword != "" {
			parts = append(parts, "password="+cfg.DBPassword)
		}
		return strings.Join(parts, " ")
	case "sqlite":
		return cfg.DBName + ".db"
	default:
		mc := gomysql.NewConfig()
		mc.User = cfg.DBUser
		mc.Passwd = cfg.DBPassword
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.DBHost, strconv.Itoa(cfg.DBPort))
		mc.DBName = cfg.DBName
		mc.ParseTime = true
		// ship dates are UTC midnights; any other loc would shift them a day
		mc.Loc = time.UTC
		mc.Params = map[string]string{"charset": "utf8mb4"}
		return mc.FormatDSN()
	}
}

func parseLogLevel(s string) logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
