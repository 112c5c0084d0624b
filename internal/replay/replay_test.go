package replay

import (
	"testing"
	"time"

	"github.com/ksred/klear-settlement/internal/journal"
	"github.com/ksred/klear-settlement/pkg/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Unix(1_700_000_000, 0)

func threeEntryJournal() *journal.Journal {
	j := journal.New()
	j.Record(epoch, journal.TradeReceived{TradeID: 1, BuyerID: 10, SellerID: 20, Price: 100, Quantity: 10})
	j.Record(epoch.Add(time.Second), journal.NettingCompleted{ObligationCount: 1, GrossBefore: 1_000, GrossAfter: 1_000})
	j.Record(epoch.Add(2*time.Second), journal.ObligationCleared{Low: 10, High: 20, Amount: 1_000, Success: true})
	return j
}

func TestJournalHashIsLastEntryHash(t *testing.T) {
	j := threeEntryJournal()
	last, ok := j.LastEntry()
	require.True(t, ok)
	assert.Equal(t, last.Hash, ComputeJournalHash(j))
	assert.Equal(t, last.Hash, LogHash(BuildFromJournal(j)))

	assert.Equal(t, journal.GenesisHash, ComputeJournalHash(journal.New()))
	assert.Equal(t, journal.GenesisHash, LogHash(nil))
}

func TestReplayMatchesStoredHashes(t *testing.T) {
	j := threeEntryJournal()
	steps := BuildFromJournal(j)
	for i, e := range j.Entries() {
		assert.Equal(t, e.Sequence, steps[i].Sequence)
		assert.Equal(t, e.Hash, steps[i].Hash)
		assert.Equal(t, e.Event.Kind(), steps[i].Kind)
	}
}

func TestReplayIdempotence(t *testing.T) {
	j := threeEntryJournal()
	result := Verify(BuildFromJournal(j), BuildFromJournal(j))
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.StepsVerified)
	assert.Nil(t, result.Mismatch)
	assert.Nil(t, result.Error)
}

func TestTamperedTimestampDetected(t *testing.T) {
	j := threeEntryJournal()
	original := BuildFromJournal(j)

	entries := j.Entries()
	entries[1].Timestamp = entries[1].Timestamp.Add(time.Nanosecond)
	result := Verify(original, BuildReplayLog(entries))

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.StepsVerified)
	require.NotNil(t, result.Mismatch)
	assert.Equal(t, uint64(2), result.Mismatch.Sequence)
	assert.Equal(t, FieldHash, result.Mismatch.Field)
	assert.Equal(t, original[1].Hash, result.Mismatch.Expected)
	assert.NotEqual(t, result.Mismatch.Expected, result.Mismatch.Actual)
	require.NotNil(t, result.Error)
	assert.Equal(t, response.ErrCodeReplayMismatch, result.Error.Code)
}

func TestTamperedEventDetected(t *testing.T) {
	j := threeEntryJournal()
	original := BuildFromJournal(j)

	entries := j.Entries()
	entries[2].Event = journal.ObligationCleared{Low: 10, High: 20, Amount: 999, Success: true}
	result := Verify(original, BuildReplayLog(entries))

	require.NotNil(t, result.Mismatch)
	assert.Equal(t, uint64(3), result.Mismatch.Sequence)
	assert.Equal(t, FieldEvent, result.Mismatch.Field)
}

func TestTamperedKindDetected(t *testing.T) {
	j := threeEntryJournal()
	original := BuildFromJournal(j)

	entries := j.Entries()
	entries[0].Event = journal.LossAbsorbed{}
	result := Verify(original, BuildReplayLog(entries))

	require.NotNil(t, result.Mismatch)
	assert.Equal(t, uint64(1), result.Mismatch.Sequence)
	assert.Equal(t, FieldKind, result.Mismatch.Field)
}

// Every single-field edit at any position must be caught at that position
// or later, never missed.
func TestTamperNeverMatches(t *testing.T) {
	j := threeEntryJournal()
	original := BuildFromJournal(j)

	edits := []func(*journal.Entry){
		func(e *journal.Entry) { e.Timestamp = e.Timestamp.Add(-time.Millisecond) },
		func(e *journal.Entry) { e.Sequence += 10 },
		func(e *journal.Entry) { e.Event = journal.MarginComputed{Total: 1} },
	}
	for k := range original {
		for _, edit := range edits {
			entries := j.Entries()
			edit(&entries[k])
			result := Verify(original, BuildReplayLog(entries))
			require.False(t, result.Success)
			assert.GreaterOrEqual(t, result.Mismatch.Sequence, original[k].Sequence)
		}
	}
}

func TestDeletedEntryDetected(t *testing.T) {
	j := threeEntryJournal()
	original := BuildFromJournal(j)
	entries := j.Entries()
	entries = append(entries[:1], entries[2:]...)

	result := Verify(original, BuildReplayLog(entries))
	require.NotNil(t, result.Mismatch)
	assert.Equal(t, uint64(2), result.Mismatch.Sequence)
	assert.Equal(t, FieldSequence, result.Mismatch.Field)
}

func TestLengthMismatch(t *testing.T) {
	j := threeEntryJournal()
	full := BuildFromJournal(j)

	result := Verify(full, full[:2])
	assert.False(t, result.Success)
	assert.Equal(t, 2, result.StepsVerified)
	require.NotNil(t, result.Mismatch)
	assert.Equal(t, FieldLength, result.Mismatch.Field)
	assert.Equal(t, uint64(3), result.Mismatch.Sequence)
	assert.Equal(t, uint64(3), result.Mismatch.Expected)
	assert.Equal(t, uint64(2), result.Mismatch.Actual)

	result = Verify(full[:1], full)
	assert.Equal(t, uint64(2), result.Mismatch.Sequence)
}

func TestVerifyEmpty(t *testing.T) {
	result := Verify(nil, nil)
	assert.True(t, result.Success)
	assert.Zero(t, result.StepsVerified)
}

func TestResultHashIsDeterministic(t *testing.T) {
	j := threeEntryJournal()
	a := Verify(BuildFromJournal(j), BuildFromJournal(j))
	b := Verify(BuildFromJournal(j), BuildFromJournal(j))
	assert.Equal(t, a.ContentHash, b.ContentHash)

	c := Verify(BuildFromJournal(j), BuildFromJournal(j)[:2])
	assert.NotEqual(t, a.ContentHash, c.ContentHash)
}

func TestCheckChain(t *testing.T) {
	j := threeEntryJournal()
	assert.True(t, CheckChain(j.Entries()).Success)
	assert.True(t, CheckChain(nil).Success)

	forged := j.Entries()
	forged[1].Event = journal.NettingCompleted{ObligationCount: 2}
	result := CheckChain(forged)
	require.NotNil(t, result.Mismatch)
	assert.Equal(t, uint64(2), result.Mismatch.Sequence)
	assert.Equal(t, FieldHash, result.Mismatch.Field)
	assert.Equal(t, 1, result.StepsVerified)

	gap := j.Entries()
	gap = append(gap[:1], gap[2:]...)
	result = CheckChain(gap)
	require.NotNil(t, result.Mismatch)
	assert.Equal(t, FieldSequence, result.Mismatch.Field)
	assert.Equal(t, uint64(2), result.Mismatch.Expected)
	assert.Equal(t, uint64(3), result.Mismatch.Actual)
}

func TestNilEventDoesNotPanic(t *testing.T) {
	entries := []journal.Entry{{Sequence: 1, Timestamp: epoch}}
	steps := BuildReplayLog(entries)
	require.Len(t, steps, 1)
	assert.Equal(t, journal.EventKind(0), steps[0].Kind)
	assert.False(t, CheckChain(entries).Success)
}
