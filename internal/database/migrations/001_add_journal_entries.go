package migrations

import (
	"github.com/ksred/klear-settlement/internal/journal"
	"gorm.io/gorm"
)

// AddJournalEntries creates the journal table and its lookup indexes.
func AddJournalEntries(db *gorm.DB) error {
	if err := db.AutoMigrate(&journal.EntryRecord{}); err != nil {
		return err
	}

	indexes := []string{
		// Audit queries filter by event kind
		`CREATE INDEX IF NOT EXISTS idx_journal_entries_kind
		 ON journal_entries(kind)`,

		`CREATE INDEX IF NOT EXISTS idx_journal_entries_timestamp
		 ON journal_entries(timestamp_ns)`,

		// Hash lookups when cross-checking exported fingerprints
		`CREATE INDEX IF NOT EXISTS idx_journal_entries_hash
		 ON journal_entries(hash)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
