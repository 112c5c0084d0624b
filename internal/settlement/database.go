package settlement

import (
	"fmt"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) SaveCycle(record *CycleRecord) error {
	if err := d.db.Create(record).Error; err != nil {
		return fmt.Errorf("failed to save cycle record: %w", err)
	}
	return nil
}

func (d *Database) GetCycle(runID string) (*CycleRecord, error) {
	var record CycleRecord
	if err := d.db.Where("run_id = ?", runID).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// ListCycles returns every cycle, oldest first.
func (d *Database) ListCycles() ([]CycleRecord, error) {
	var records []CycleRecord
	if err := d.db.Order("id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list cycles: %w", err)
	}
	return records, nil
}
