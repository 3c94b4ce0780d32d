/**
 * Control Plane HTTP Admin Surface Tests.
 *
 * Drives the route table with net/http/httptest and a real
 * rules.Engine, verifying the alert/rule/config/stats JSON contracts
 * without a live capture source.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package control

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/kleaSCM/sentryd/internal/config"
	"github.com/kleaSCM/sentryd/internal/models"
	"github.com/kleaSCM/sentryd/internal/rules"
	"github.com/kleaSCM/sentryd/internal/storage"
	"github.com/kleaSCM/sentryd/pkg/api"
)

type fakeQuiescer struct{ quiesced bool }

func (f *fakeQuiescer) Quiesce(ctx context.Context) error {
	f.quiesced = true
	return nil
}

type fakeSink struct {
	alerts  []*models.Alert
	talkers []storage.TalkerStat
}

func (f *fakeSink) Close() error   { return nil }
func (f *fakeSink) Migrate() error { return nil }

func (f *fakeSink) SaveAlert(alert *models.Alert) error {
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeSink) ListAlerts(limit, offset int) ([]*models.Alert, error) {
	return f.alerts, nil
}

func (f *fakeSink) SeverityHistogram(since int64) (map[string]int, error) {
	return map[string]int{"high": 2, "medium": 1}, nil
}

func (f *fakeSink) SaveCorrelationAlert(ca *models.CorrelationAlert) error { return nil }

func (f *fakeSink) ListCorrelationAlerts(limit, offset int) ([]*models.CorrelationAlert, error) {
	return nil, nil
}

func (f *fakeSink) RecordPacketStats(srcIP, dstIP string, bytes int) error { return nil }

func (f *fakeSink) TopTalkers(limit int) ([]storage.TalkerStat, error) {
	return f.talkers, nil
}

var _ storage.Sink = (*fakeSink)(nil)

func newTestServer(t *testing.T) (*Server, *fakeSink) {
	t.Helper()
	dir := t.TempDir()
	content := `rules:
  - name: "Large Packet Detection"
    conditions:
      - ["ip_len", ">", 1500]
    severity: medium
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "builtin.yaml"), []byte(content), 0o644))

	engine, err := rules.New(dir, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	hooks := New(engine, &fakeQuiescer{})
	sink := &fakeSink{}
	server := NewServer(hooks, sink, prometheus.NewRegistry(), config.Default(), nil, nil)
	return server, sink
}

func doRequest(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()

	router := mux.NewRouter()
	server.RegisterRoutes(router)
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthzReturnsOK(t *testing.T) {
	server, _ := newTestServer(t)
	rec := doRequest(t, server, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.OKResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.OK)
}

func TestListAlertsReturnsSavedAlerts(t *testing.T) {
	server, sink := newTestServer(t)
	sink.alerts = []*models.Alert{{ID: "a1", Severity: models.SeverityHigh, SrcIP: "1.2.3.4"}}

	rec := doRequest(t, server, http.MethodGet, "/api/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.AlertListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	require.Equal(t, "a1", resp.Alerts[0].ID)
}

func TestAlertStatsReturnsHistogram(t *testing.T) {
	server, _ := newTestServer(t)
	rec := doRequest(t, server, http.MethodGet, "/api/alerts/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.SeverityHistogramResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Stats["high"])
}

func TestListRulesIncludesBuiltin(t *testing.T) {
	server, _ := newTestServer(t)
	rec := doRequest(t, server, http.MethodGet, "/api/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.RuleListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Rules, 1)
	require.Equal(t, "Large Packet Detection", resp.Rules[0].Name)
}

func TestAddRuleThenEnableDisableRemove(t *testing.T) {
	server, _ := newTestServer(t)

	dto := api.RuleDTO{
		Name:     "SYN Flood Detection",
		Severity: "high",
		Enabled:  true,
		Conditions: []api.ConditionDTO{
			{Feature: "tcp_flags", Operator: "==", Operand: "0x02"},
			{Feature: "packet_count", Operator: ">", Operand: float64(200)},
		},
	}
	rec := doRequest(t, server, http.MethodPost, "/api/rules", dto)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, server, http.MethodPost, "/api/rules/SYN%20Flood%20Detection/disable", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, server, http.MethodPost, "/api/rules/SYN%20Flood%20Detection/enable", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, server, http.MethodDelete, "/api/rules/SYN%20Flood%20Detection", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, server, http.MethodPost, "/api/rules/no-such-rule/enable", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReloadRules(t *testing.T) {
	server, _ := newTestServer(t)
	rec := doRequest(t, server, http.MethodPost, "/api/rules/reload", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGetConfigReturnsCurrentSnapshot(t *testing.T) {
	server, _ := newTestServer(t)
	rec := doRequest(t, server, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var cfg config.Config
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	require.Equal(t, config.Default().Interface, cfg.Interface)
}

func TestTopTalkersWithoutEnrichmentLeavesFieldsBlank(t *testing.T) {
	server, sink := newTestServer(t)
	sink.talkers = []storage.TalkerStat{{IP: "8.8.8.8", BytesTotal: 1024, PacketsTotal: 4}}

	rec := doRequest(t, server, http.MethodGet, "/api/stats/top-ips", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.TopTalkersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Talkers, 1)
	require.Equal(t, "8.8.8.8", resp.Talkers[0].IP)
	require.Empty(t, resp.Talkers[0].Country)
	require.Empty(t, resp.Talkers[0].Hostname)
}
