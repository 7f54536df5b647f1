package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kunjulin/PRECISE-HBR-sub000/internal/config"
	"github.com/kunjulin/PRECISE-HBR-sub000/internal/history"
	"github.com/kunjulin/PRECISE-HBR-sub000/internal/ruleset"
	"github.com/kunjulin/PRECISE-HBR-sub000/internal/service"
)

type memoryStore struct {
	records []*history.Record
}

func (m *memoryStore) Save(_ context.Context, rec *history.Record) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *memoryStore) ListByPatient(_ context.Context, patientID string, limit int) ([]*history.Record, error) {
	var out []*history.Record
	for _, rec := range m.records {
		if rec.PatientID == patientID && len(out) < limit {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memoryStore) Close() error { return nil }

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Host:           "127.0.0.1",
		Port:           0,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		AllowedOrigins: []string{"*"},
	}
}

func newTestServer(t *testing.T, store history.Store) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.PanicLevel)

	loader := ruleset.NewLoader("", logger)
	require.NoError(t, loader.Load())

	evaluator := service.NewEvaluator(loader, store, logger)
	return NewServer(testServerConfig(), evaluator, store, logger)
}

func completeSnapshotJSON() []byte {
	return []byte(`{
		"patient_id": "patient-1",
		"demographics": {"age_years": 79, "sex": "female"},
		"labs": [
			{"analyte": "hemoglobin", "value": 10.2, "unit": "g/dL", "effective_date": "2025-06-01T00:00:00Z"},
			{"analyte": "egfr", "value": 45, "unit": "mL/min/1.73m2", "effective_date": "2025-06-01T00:00:00Z"},
			{"analyte": "wbc", "value": 8360, "unit": "cells/uL", "effective_date": "2025-06-01T00:00:00Z"}
		]
	}`)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	w := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["ruleset_version"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestScoreEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	w := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/score", completeSnapshotJSON())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		TotalScore int    `json:"total_score"`
		Category   string `json:"category"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 4, body.TotalScore)
	assert.Equal(t, "NOT_HIGH", body.Category)
}

func TestScoreEndpointInsufficientData(t *testing.T) {
	s := newTestServer(t, nil)

	w := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/score",
		[]byte(`{"patient_id": "patient-2", "demographics": {"age_years": 70}}`))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body struct {
		MissingInputs []string `json:"missing_inputs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"hemoglobin", "egfr", "wbc"}, body.MissingInputs)
}

func TestScoreEndpointBadRequests(t *testing.T) {
	s := newTestServer(t, nil)

	w := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/score", []byte(`{not json`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s.Handler(), http.MethodPost, "/api/v1/score", []byte(`{"demographics": {"age_years": 70}}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTradeoffEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	// Trade-off degrades gracefully on missing labs.
	w := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/tradeoff",
		[]byte(`{"patient_id": "patient-2", "demographics": {"age_years": 70}}`))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		BleedingHRTotal float64 `json:"bleeding_hr_total"`
		BleedingPct     float64 `json:"bleeding_probability_pct"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.InDelta(t, 1.50, body.BleedingHRTotal, 1e-9)
	assert.Greater(t, body.BleedingPct, 0.0)
}

func TestEvaluateEndpointPersistsHistory(t *testing.T) {
	store := &memoryStore{}
	s := newTestServer(t, store)

	w := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/evaluate", completeSnapshotJSON())
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		ID    string `json:"id"`
		Score *struct {
			TotalScore int `json:"total_score"`
		} `json:"score"`
		Tradeoff map[string]interface{} `json:"tradeoff"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.ID)
	require.NotNil(t, body.Score)
	assert.Equal(t, 4, body.Score.TotalScore)
	assert.NotNil(t, body.Tradeoff)

	require.Len(t, store.records, 1)
	assert.Equal(t, body.ID, store.records[0].ID)

	w = doJSON(t, s.Handler(), http.MethodGet, "/api/v1/history/patient-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Evaluations []history.Record `json:"evaluations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Evaluations, 1)
}

func TestHistoryEndpointEdgeCases(t *testing.T) {
	t.Run("disabled store", func(t *testing.T) {
		s := newTestServer(t, nil)
		w := doJSON(t, s.Handler(), http.MethodGet, "/api/v1/history/patient-1", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("bad limit", func(t *testing.T) {
		s := newTestServer(t, &memoryStore{})
		w := doJSON(t, s.Handler(), http.MethodGet, "/api/v1/history/patient-1?limit=zero", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRulesetEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	w := doJSON(t, s.Handler(), http.MethodGet, "/api/v1/ruleset", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Version     string `json:"version"`
		FactorCount int    `json:"factor_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Version)
	assert.Greater(t, body.FactorCount, 10)
}

func TestRateLimiting(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.PanicLevel)

	loader := ruleset.NewLoader("", logger)
	require.NoError(t, loader.Load())
	evaluator := service.NewEvaluator(loader, nil, logger)

	cfg := testServerConfig()
	cfg.RateLimitRPS = 1
	cfg.RateLimitBurst = 1
	s := NewServer(cfg, evaluator, nil, logger)

	first := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, first.Code)

	second := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
