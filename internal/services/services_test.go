package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/avasiliou/go-mlm-backend/internal/domain"
	"github.com/avasiliou/go-mlm-backend/internal/repo"
)

// newServiceDB opens a throwaway SQLite database with the full schema and
// the default level ladder, matching what the server does at startup.
func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("services_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if err := repo.SeedLevelDefinitions(db); err != nil {
		t.Fatalf("seed levels: %v", err)
	}
	return db
}

// registerChain builds a straight sponsorship line of n members (index 0 is
// the root) and returns them top-down.
func registerChain(t *testing.T, svc *NetworkService, n int) []*domain.Member {
	t.Helper()

	out := make([]*domain.Member, 0, n)
	prevID := ""
	for i := 0; i < n; i++ {
		m, err := svc.Register(context.Background(), prevID, "")
		if err != nil {
			t.Fatalf("register member %d: %v", i, err)
		}
		out = append(out, m)
		prevID = m.ID
	}
	return out
}

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu       sync.Mutex
	paid     []CommissionPaidEvent
	advanced []LevelAdvancedEvent
}

func (p *capturePublisher) CommissionPaid(_ context.Context, ev CommissionPaidEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paid = append(p.paid, ev)
}

func (p *capturePublisher) LevelAdvanced(_ context.Context, ev LevelAdvancedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanced = append(p.advanced, ev)
}

func (p *capturePublisher) paidEvents() []CommissionPaidEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CommissionPaidEvent(nil), p.paid...)
}

func (p *capturePublisher) advancedEvents() []LevelAdvancedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]LevelAdvancedEvent(nil), p.advanced...)
}
