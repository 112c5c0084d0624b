package clearing

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// SaveAccounts upserts a balance snapshot in a single transaction.
func (d *Database) SaveAccounts(accounts []ClearingAccount) error {
	if len(accounts) == 0 {
		return nil
	}

	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"balance"}),
	}).Create(&accounts).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to save accounts: %w", err)
	}

	return tx.Commit().Error
}

// LoadAccounts returns the stored snapshot ordered by account id.
func (d *Database) LoadAccounts() ([]ClearingAccount, error) {
	var accounts []ClearingAccount
	if err := d.db.Order("account_id ASC").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	return accounts, nil
}
