// Package journal is the append-only, hash-chained audit record of every
// settlement event.
package journal

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ksred/klear-settlement/pkg/contenthash"
	"github.com/rs/zerolog/log"
)

const (
	// GenesisHash is the previous-hash input for the first entry.
	GenesisHash uint64 = 0
	// FirstSequence is the sequence number of the first entry.
	FirstSequence uint64 = 1
)

// Entry is one journaled event. Hash commits to the previous entry's hash,
// so changing any field of any entry breaks every later hash.
type Entry struct {
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Event     Event     `json:"event"`
	Hash      uint64    `json:"hash"`
}

// ComputeHash chains an entry onto prev.
func ComputeHash(prev, sequence uint64, ts time.Time, ev Event) uint64 {
	h := contenthash.New().
		Uint64(prev).
		Uint64(sequence).
		Int64(ts.UnixNano())
	writeEvent(h, ev)
	return h.Sum64()
}

// Journal serializes appends behind a mutex. There is no API to modify or
// remove an entry once recorded.
type Journal struct {
	mu       sync.RWMutex
	entries  []Entry
	lastHash uint64
}

// ErrBrokenChain is returned when restored entries do not form a valid chain.
var ErrBrokenChain = errors.New("broken journal chain")

func New() *Journal {
	return &Journal{lastHash: GenesisHash}
}

// Restore rebuilds a journal from previously recorded entries, typically
// loaded from the audit export. Every entry must follow its predecessor and
// carry the hash Record would have given it.
func Restore(entries []Entry) (*Journal, error) {
	j := New()
	for i, e := range entries {
		want := FirstSequence + uint64(i)
		if e.Sequence != want {
			return nil, fmt.Errorf("%w: entry %d has sequence %d", ErrBrokenChain, want, e.Sequence)
		}
		if e.Event == nil {
			return nil, fmt.Errorf("%w: entry %d has no event", ErrBrokenChain, e.Sequence)
		}
		if h := ComputeHash(j.lastHash, e.Sequence, e.Timestamp, e.Event); h != e.Hash {
			return nil, fmt.Errorf("%w: entry %d hash %016x, recomputed %016x", ErrBrokenChain, e.Sequence, e.Hash, h)
		}
		j.entries = append(j.entries, e)
		j.lastHash = e.Hash
	}
	return j, nil
}

// Record appends ev and returns the new entry.
func (j *Journal) Record(ts time.Time, ev Event) Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	seq := FirstSequence + uint64(len(j.entries))
	entry := Entry{
		Sequence:  seq,
		Timestamp: ts,
		Event:     ev,
		Hash:      ComputeHash(j.lastHash, seq, ts, ev),
	}
	j.entries = append(j.entries, entry)
	j.lastHash = entry.Hash

	log.Debug().
		Str("service", "journal").
		Uint64("sequence", seq).
		Stringer("kind", kindOf(ev)).
		Uint64("hash", entry.Hash).
		Msg("recorded journal entry")

	return entry
}

// Entries returns a copy of the history.
func (j *Journal) Entries() []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]Entry(nil), j.entries...)
}

// Since returns entries with a sequence greater than seq.
func (j *Journal) Since(seq uint64) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	// entries[i] has sequence FirstSequence+i, so seq entries precede the rest
	if seq >= uint64(len(j.entries)) {
		return nil
	}
	return append([]Entry(nil), j.entries[seq:]...)
}

// LastEntry returns the newest entry, or false when the journal is empty.
func (j *Journal) LastEntry() (Entry, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.entries) == 0 {
		return Entry{}, false
	}
	return j.entries[len(j.entries)-1], true
}

func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

func (j *Journal) IsEmpty() bool {
	return j.Len() == 0
}

// LastHash is the newest entry's hash, or GenesisHash when empty.
func (j *Journal) LastHash() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.lastHash
}
