package repo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/avasiliou/go-mlm-backend/internal/domain"
)

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	base := t.TempDir()
	bad := filepath.Join(base, "does-not-exist", "mlm.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}

	// Be tolerant across platforms/drivers:
	// - Windows: *os.PathError ("CreateFile … cannot find the file specified")
	// - SQLite:  "unable to open database file" / "out of memory (14)"
	// - Unix:    "no such file or directory"
	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory") ||
		strings.Contains(lower, "out of memory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestOpenSQLite_SetsPragmas_Pool_AndAutoMigrate(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "mlm.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	// --- Verify PRAGMAs set by OpenSQLite ---
	var (
		journalMode string
		syncVal     int
		fkOn        int
		busyMS      int
	)

	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if strings.ToLower(journalMode) != "wal" {
		t.Fatalf("expected journal_mode=wal, got %q", journalMode)
	}

	if err := db.Raw("PRAGMA synchronous;").Row().Scan(&syncVal); err != nil {
		t.Fatalf("PRAGMA synchronous: %v", err)
	}
	// NORMAL == 1
	if syncVal != 1 {
		t.Fatalf("expected synchronous=1 (NORMAL), got %d", syncVal)
	}

	if err := db.Raw("PRAGMA foreign_keys;").Row().Scan(&fkOn); err != nil {
		t.Fatalf("PRAGMA foreign_keys: %v", err)
	}
	if fkOn != 1 {
		t.Fatalf("expected foreign_keys=1, got %d", fkOn)
	}

	if err := db.Raw("PRAGMA busy_timeout;").Row().Scan(&busyMS); err != nil {
		t.Fatalf("PRAGMA busy_timeout: %v", err)
	}
	if busyMS != 5000 {
		t.Fatalf("expected busy_timeout=5000, got %d", busyMS)
	}

	// --- Verify pool tuning applied ---
	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 10 {
		t.Fatalf("expected MaxOpenConnections=10, got %d", stats.MaxOpenConnections)
	}

	// --- AutoMigrate should create all tables ---
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range []any{
		&domain.Member{}, &domain.NetworkEdge{}, &domain.VolumeBucket{},
		&domain.CommissionRecord{}, &domain.LevelDefinition{}, &domain.IdempotencyRecord{},
	} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	// Quick insert round-trip to prove schema is usable.
	now := time.Now().UTC()
	member := &domain.Member{ID: "m1", ReferralCode: "MBR-DBTEST", Status: domain.MemberStatusActive, CreatedAt: now}
	if err := db.Create(member).Error; err != nil {
		t.Fatalf("insert member: %v", err)
	}
	rec := &domain.CommissionRecord{
		ID: "r1", BeneficiaryID: "m1", SourceMemberID: "m1", Level: 1,
		EventID: "evt-db", EventType: domain.EventTypeSubscription,
		BaseAmount: decimal.NewFromInt(100), Rate: decimal.NewFromFloat(0.10),
		Amount: decimal.NewFromInt(10), Status: domain.CommissionStatusPending,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("insert commission: %v", err)
	}
	idem := &domain.IdempotencyRecord{
		Key: "k1", State: domain.IdempotencyStateCompleted,
		LockOwner:     "00000000-0000-0000-0000-000000000000",
		LockExpiresAt: now, RecordExpiresAt: now.Add(time.Hour),
	}
	if err := db.Create(idem).Error; err != nil {
		t.Fatalf("insert idempotency: %v", err)
	}

	var got domain.Member
	if err := db.First(&got, "id = ?", "m1").Error; err != nil || got.ReferralCode != "MBR-DBTEST" {
		t.Fatalf("readback member failed: err=%v got=%+v", err, got)
	}
}

func TestSeedLevelDefinitions_LeavesTunedRowsAlone(t *testing.T) {
	tmp := t.TempDir()
	db, err := OpenSQLite(filepath.Join(tmp, "mlm.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	if err := SeedLevelDefinitions(db); err != nil {
		t.Fatalf("SeedLevelDefinitions: %v", err)
	}

	// Operator tunes a threshold; re-seeding at the next startup must not
	// clobber it.
	if err := db.Model(&domain.LevelDefinition{}).
		Where("ordinal = ?", 1).
		Update("lifetime_points_required", 1_500).Error; err != nil {
		t.Fatalf("tune threshold: %v", err)
	}
	if err := SeedLevelDefinitions(db); err != nil {
		t.Fatalf("SeedLevelDefinitions again: %v", err)
	}

	var defs []domain.LevelDefinition
	if err := db.Order("ordinal asc").Find(&defs).Error; err != nil {
		t.Fatalf("load definitions: %v", err)
	}
	if len(defs) != len(DefaultLevelDefinitions) {
		t.Fatalf("expected %d definitions, got %d", len(DefaultLevelDefinitions), len(defs))
	}
	if defs[1].LifetimePointsRequired != 1_500 {
		t.Fatalf("tuned threshold must survive re-seeding, got %d", defs[1].LifetimePointsRequired)
	}
}

// Compile-time guard to ensure signature stability.
var _ func(string) (*gorm.DB, error) = OpenSQLite
