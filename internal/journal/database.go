package journal

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
)

// EntryRecord is the persisted form of an Entry. Hashes are stored as
// fixed-width hex since sqlite integers are signed.
type EntryRecord struct {
	Sequence    uint64    `gorm:"primaryKey;autoIncrement:false"`
	TimestampNs int64     `gorm:"not null"`
	Kind        EventKind `gorm:"not null"`
	Payload     string    `gorm:"type:text;not null"`
	Hash        string    `gorm:"size:16;not null"`
	CreatedAt   time.Time
}

func (EntryRecord) TableName() string {
	return "journal_entries"
}

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func toRecord(e Entry) (EntryRecord, error) {
	if e.Event == nil {
		return EntryRecord{}, fmt.Errorf("entry %d has no event", e.Sequence)
	}
	payload, err := json.Marshal(e.Event)
	if err != nil {
		return EntryRecord{}, fmt.Errorf("failed to encode entry %d: %w", e.Sequence, err)
	}
	return EntryRecord{
		Sequence:    e.Sequence,
		TimestampNs: e.Timestamp.UnixNano(),
		Kind:        e.Event.Kind(),
		Payload:     string(payload),
		Hash:        fmt.Sprintf("%016x", e.Hash),
	}, nil
}

func (r EntryRecord) entry() (Entry, error) {
	ev, err := decodeEvent(r.Kind, []byte(r.Payload))
	if err != nil {
		return Entry{}, fmt.Errorf("entry %d: %w", r.Sequence, err)
	}
	hash, err := strconv.ParseUint(r.Hash, 16, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %d: invalid hash %q: %w", r.Sequence, r.Hash, err)
	}
	return Entry{
		Sequence:  r.Sequence,
		Timestamp: time.Unix(0, r.TimestampNs).UTC(),
		Event:     ev,
		Hash:      hash,
	}, nil
}

// AppendEntries inserts entries in one transaction. Existing sequences are
// never overwritten; re-inserting one fails the whole batch.
func (d *Database) AppendEntries(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	records := make([]EntryRecord, 0, len(entries))
	for _, e := range entries {
		r, err := toRecord(e)
		if err != nil {
			return err
		}
		records = append(records, r)
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

	if err := tx.Create(&records).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to append journal entries: %w", err)
	}

	return tx.Commit().Error
}

// LoadEntries reads the whole journal ordered by sequence.
func (d *Database) LoadEntries() ([]Entry, error) {
	var records []EntryRecord
	if err := d.db.Order("sequence ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load journal entries: %w", err)
	}
	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		e, err := r.entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// LastSequence returns the highest stored sequence, or zero for an empty
// table.
func (d *Database) LastSequence() (uint64, error) {
	var seq uint64
	if err := d.db.Model(&EntryRecord{}).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&seq).Error; err != nil {
		return 0, fmt.Errorf("failed to read last sequence: %w", err)
	}
	return seq, nil
}
