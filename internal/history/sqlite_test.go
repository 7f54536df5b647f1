package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRecord(id, patientID string, at time.Time) *Record {
	score := 4
	return &Record{
		ID:             id,
		PatientID:      patientID,
		RulesetVersion: "2025.2-builtin",
		TotalScore:     &score,
		Category:       "NOT_HIGH",
		BleedingPct:    8.65,
		ThromboticPct:  4.51,
		EvaluatedAt:    at,
	}
}

func TestSQLiteSaveAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, sampleRecord("eval-1", "patient-1", base)))
	require.NoError(t, store.Save(ctx, sampleRecord("eval-2", "patient-1", base.Add(time.Hour))))
	require.NoError(t, store.Save(ctx, sampleRecord("eval-3", "patient-2", base)))

	records, err := store.ListByPatient(ctx, "patient-1", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Most recent first.
	assert.Equal(t, "eval-2", records[0].ID)
	assert.Equal(t, "eval-1", records[1].ID)
	require.NotNil(t, records[0].TotalScore)
	assert.Equal(t, 4, *records[0].TotalScore)
	assert.Equal(t, "NOT_HIGH", records[0].Category)
	assert.InDelta(t, 8.65, records[0].BleedingPct, 1e-9)
}

func TestSQLiteInsufficientDataRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &Record{
		ID:             "eval-4",
		PatientID:      "patient-3",
		RulesetVersion: "2025.2-builtin",
		BleedingPct:    2.5,
		ThromboticPct:  2.5,
		MissingInputs:  []string{"hemoglobin", "wbc"},
		EvaluatedAt:    time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save(ctx, rec))

	records, err := store.ListByPatient(ctx, "patient-3", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Nil(t, records[0].TotalScore)
	assert.Empty(t, records[0].Category)
	assert.Equal(t, []string{"hemoglobin", "wbc"}, records[0].MissingInputs)
}

func TestSQLiteListLimitAndUnknownPatient(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		rec := sampleRecord("", "patient-1", base.Add(time.Duration(i)*time.Minute))
		rec.ID = string(rune('a' + i))
		require.NoError(t, store.Save(ctx, rec))
	}

	records, err := store.ListByPatient(ctx, "patient-1", 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	records, err = store.ListByPatient(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExportJSON(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, sampleRecord("eval-1", "patient-1", time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))))

	data, err := ExportJSON(ctx, store, "patient-1", 10)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"eval-1"`)

	data, err = ExportJSON(ctx, store, "nobody", 10)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}
