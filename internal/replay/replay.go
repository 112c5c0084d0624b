// Package replay rebuilds a journal's hash chain from event payloads alone
// and compares chains step by step.
package replay

import (
	"fmt"
	"time"

	"github.com/ksred/klear-settlement/internal/journal"
	"github.com/ksred/klear-settlement/pkg/contenthash"
	"github.com/ksred/klear-settlement/pkg/response"
	"github.com/rs/zerolog/log"
)

// Mismatch fields.
const (
	FieldSequence = "sequence"
	FieldKind     = "kind"
	FieldEvent    = "event"
	FieldHash     = "hash"
	FieldLength   = "length"
)

// ReplayStep is one recomputed link of the chain.
type ReplayStep struct {
	Sequence  uint64            `json:"sequence"`
	Timestamp time.Time         `json:"timestamp"`
	Kind      journal.EventKind `json:"kind"`
	EventHash uint64            `json:"event_hash"`
	Hash      uint64            `json:"hash"`
}

// ReplayMismatch is the first point where two chains diverge. For a length
// mismatch Expected and Actual are the step counts.
type ReplayMismatch struct {
	Sequence uint64 `json:"sequence"`
	Field    string `json:"field"`
	Expected uint64 `json:"expected"`
	Actual   uint64 `json:"actual"`
}

func (m *ReplayMismatch) String() string {
	return fmt.Sprintf("sequence %d: %s expected %x, got %x", m.Sequence, m.Field, m.Expected, m.Actual)
}

// ReplayResult is returned as data; verification never fails with an error.
type ReplayResult struct {
	Success       bool            `json:"success"`
	StepsVerified int             `json:"steps_verified"`
	Mismatch      *ReplayMismatch `json:"mismatch,omitempty"`
	Error         *response.Error `json:"error,omitempty"`
	ContentHash   uint64          `json:"content_hash"`
}

// BuildReplayLog recomputes every hash from the entries' sequence,
// timestamp and event. Stored hashes are ignored.
func BuildReplayLog(entries []journal.Entry) []ReplayStep {
	steps := make([]ReplayStep, 0, len(entries))
	prev := journal.GenesisHash
	for _, e := range entries {
		step := ReplayStep{
			Sequence:  e.Sequence,
			Timestamp: e.Timestamp,
			EventHash: journal.EventHash(e.Event),
			Hash:      journal.ComputeHash(prev, e.Sequence, e.Timestamp, e.Event),
		}
		if e.Event != nil {
			step.Kind = e.Event.Kind()
		}
		steps = append(steps, step)
		prev = step.Hash
	}
	return steps
}

// BuildFromJournal is BuildReplayLog over a snapshot of j.
func BuildFromJournal(j *journal.Journal) []ReplayStep {
	return BuildReplayLog(j.Entries())
}

// Verify walks both logs in lockstep and reports the first divergence.
func Verify(expected, actual []ReplayStep) ReplayResult {
	n := min(len(expected), len(actual))
	for i := 0; i < n; i++ {
		if m := compareStep(&expected[i], &actual[i]); m != nil {
			return finish(i, m, actual)
		}
	}
	if len(expected) != len(actual) {
		return finish(n, &ReplayMismatch{
			Sequence: nextSequence(expected, actual, n),
			Field:    FieldLength,
			Expected: uint64(len(expected)),
			Actual:   uint64(len(actual)),
		}, actual)
	}
	return finish(n, nil, actual)
}

// CheckChain recomputes the chain and compares it with the hashes stored on
// the entries, which detects entries edited after the fact. Sequences must
// also run contiguously from the first sequence number.
func CheckChain(entries []journal.Entry) ReplayResult {
	steps := BuildReplayLog(entries)
	for i, e := range entries {
		if want := journal.FirstSequence + uint64(i); e.Sequence != want {
			return finish(i, &ReplayMismatch{
				Sequence: e.Sequence,
				Field:    FieldSequence,
				Expected: want,
				Actual:   e.Sequence,
			}, steps)
		}
		if e.Hash != steps[i].Hash {
			return finish(i, &ReplayMismatch{
				Sequence: e.Sequence,
				Field:    FieldHash,
				Expected: steps[i].Hash,
				Actual:   e.Hash,
			}, steps)
		}
	}
	return finish(len(entries), nil, steps)
}

// ComputeJournalHash is the hash of j's last entry, which commits to the
// whole history. An empty journal yields GenesisHash.
func ComputeJournalHash(j *journal.Journal) uint64 {
	return j.LastHash()
}

// LogHash is the final hash of a replay log, or GenesisHash when empty.
func LogHash(steps []ReplayStep) uint64 {
	if len(steps) == 0 {
		return journal.GenesisHash
	}
	return steps[len(steps)-1].Hash
}

func compareStep(want, got *ReplayStep) *ReplayMismatch {
	switch {
	case want.Sequence != got.Sequence:
		return &ReplayMismatch{Sequence: want.Sequence, Field: FieldSequence, Expected: want.Sequence, Actual: got.Sequence}
	case want.Kind != got.Kind:
		return &ReplayMismatch{Sequence: want.Sequence, Field: FieldKind, Expected: uint64(want.Kind), Actual: uint64(got.Kind)}
	case want.EventHash != got.EventHash:
		return &ReplayMismatch{Sequence: want.Sequence, Field: FieldEvent, Expected: want.EventHash, Actual: got.EventHash}
	case want.Hash != got.Hash:
		return &ReplayMismatch{Sequence: want.Sequence, Field: FieldHash, Expected: want.Hash, Actual: got.Hash}
	}
	return nil
}

// nextSequence names the first step present in only one log.
func nextSequence(expected, actual []ReplayStep, n int) uint64 {
	if n < len(expected) {
		return expected[n].Sequence
	}
	return actual[n].Sequence
}

func finish(verified int, m *ReplayMismatch, actual []ReplayStep) ReplayResult {
	result := ReplayResult{
		Success:       m == nil,
		StepsVerified: verified,
		Mismatch:      m,
	}
	h := contenthash.New().
		Bool(result.Success).
		Uint64(uint64(verified)).
		Uint64(LogHash(actual))
	if m != nil {
		result.Error = response.New(response.ErrCodeReplayMismatch, m.String())
		h.Uint64(m.Sequence).String(m.Field)

		log.Warn().
			Str("service", "replay").
			Uint64("sequence", m.Sequence).
			Str("field", m.Field).
			Int("steps_verified", verified).
			Msg("replay diverged")
	}
	result.ContentHash = h.Sum64()
	return result
}
