package history

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStoreWithDB(db), mock
}

func TestPostgresSave(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	score := 4

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO evaluations")).
		WithArgs("eval-1", "patient-1", "2025.2-builtin", 4, "NOT_HIGH", 8.65, 4.51, "", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Save(context.Background(), &Record{
		ID:             "eval-1",
		PatientID:      "patient-1",
		RulesetVersion: "2025.2-builtin",
		TotalScore:     &score,
		Category:       "NOT_HIGH",
		BleedingPct:    8.65,
		ThromboticPct:  4.51,
		EvaluatedAt:    at,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveWithoutScore(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO evaluations")).
		WithArgs("eval-2", "patient-2", "2025.2-builtin", nil, nil, 2.5, 2.5, `["hemoglobin","wbc"]`, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Save(context.Background(), &Record{
		ID:             "eval-2",
		PatientID:      "patient-2",
		RulesetVersion: "2025.2-builtin",
		BleedingPct:    2.5,
		ThromboticPct:  2.5,
		MissingInputs:  []string{"hemoglobin", "wbc"},
		EvaluatedAt:    at,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListByPatient(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	columns := []string{
		"id", "patient_id", "ruleset_version", "total_score", "category",
		"bleeding_pct", "thrombotic_pct", "missing_inputs", "evaluated_at",
	}
	rows := sqlmock.NewRows(columns).
		AddRow("eval-2", "patient-1", "2025.2-builtin", 4, "NOT_HIGH", 8.65, 4.51, "", at.Add(time.Hour)).
		AddRow("eval-1", "patient-1", "2025.2-builtin", nil, nil, 2.5, 2.5, `["egfr"]`, at)

	mock.ExpectQuery(regexp.QuoteMeta("FROM evaluations")).
		WithArgs("patient-1", 10).
		WillReturnRows(rows)

	records, err := store.ListByPatient(context.Background(), "patient-1", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.NotNil(t, records[0].TotalScore)
	assert.Equal(t, 4, *records[0].TotalScore)
	assert.Nil(t, records[1].TotalScore)
	assert.Equal(t, []string{"egfr"}, records[1].MissingInputs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListDefaultLimit(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM evaluations")).
		WithArgs("patient-1", 50).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "patient_id", "ruleset_version", "total_score", "category",
			"bleeding_pct", "thrombotic_pct", "missing_inputs", "evaluated_at",
		}))

	records, err := store.ListByPatient(context.Background(), "patient-1", 0)
	require.NoError(t, err)
	assert.Empty(t, records)
	require.NoError(t, mock.ExpectationsWereMet())
}
