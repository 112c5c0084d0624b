package migrations

import (
	"github.com/ksred/klear-settlement/internal/settlement"
	"gorm.io/gorm"
)

// AddSettlementCycles creates the per-cycle summary table.
func AddSettlementCycles(db *gorm.DB) error {
	if err := db.AutoMigrate(&settlement.CycleRecord{}); err != nil {
		return err
	}
	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_settlement_cycles_started_at
		ON settlement_cycles(started_at)`).Error
}
