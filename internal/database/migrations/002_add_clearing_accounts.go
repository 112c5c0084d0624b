package migrations

import (
	"github.com/ksred/klear-settlement/internal/clearing"
	"gorm.io/gorm"
)

// AddClearingAccounts creates the account balance snapshot table.
func AddClearingAccounts(db *gorm.DB) error {
	return db.AutoMigrate(&clearing.ClearingAccount{})
}
