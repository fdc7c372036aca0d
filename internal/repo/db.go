// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver), schema migrations, and reference-data seeding.
package repo

import (
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/avasiliou/go-mlm-backend/internal/domain"
)

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	// DB-level spans; HTTP-level metrics already cover request rates.
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}

	return db, nil
}

// AutoMigrate creates or updates the schema for all domain models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Member{},
		&domain.NetworkEdge{},
		&domain.VolumeBucket{},
		&domain.CommissionRecord{},
		&domain.LevelDefinition{},
		&domain.IdempotencyRecord{},
	)
}

// DefaultLevelDefinitions is the ordered professional-level ladder seeded at
// startup. Ordinal 0 is the entry level every member starts at.
var DefaultLevelDefinitions = []domain.LevelDefinition{
	{Ordinal: 0, Name: "Associate", LifetimePointsRequired: 0, MonthlyPointsRequired: 0},
	{Ordinal: 1, Name: "Consultant", LifetimePointsRequired: 1_000, MonthlyPointsRequired: 100},
	{Ordinal: 2, Name: "Senior Consultant", LifetimePointsRequired: 5_000, MonthlyPointsRequired: 250},
	{Ordinal: 3, Name: "Manager", LifetimePointsRequired: 20_000, MonthlyPointsRequired: 500},
	{Ordinal: 4, Name: "Director", LifetimePointsRequired: 75_000, MonthlyPointsRequired: 1_000},
	{Ordinal: 5, Name: "Executive Director", LifetimePointsRequired: 250_000, MonthlyPointsRequired: 2_000},
}

// SeedLevelDefinitions inserts the default ladder, leaving any existing rows
// untouched so operators can tune thresholds without fighting restarts.
func SeedLevelDefinitions(db *gorm.DB) error {
	return db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&DefaultLevelDefinitions).Error
}
