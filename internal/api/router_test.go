package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/statement-converter/internal/api/events"
	"github.com/dvloznov/statement-converter/internal/api/handlers"
	"github.com/dvloznov/statement-converter/internal/api/middleware"
	"github.com/dvloznov/statement-converter/internal/domain"
	"github.com/dvloznov/statement-converter/internal/jobs/inmemory"
	"github.com/dvloznov/statement-converter/internal/metrics"
	"github.com/dvloznov/statement-converter/internal/pdfdoc"
	"github.com/dvloznov/statement-converter/internal/pipeline"
	"github.com/dvloznov/statement-converter/internal/session"
	"github.com/dvloznov/statement-converter/internal/usage"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amount(v float64) *float64 { return &v }

// probeByContent treats "locked" as encrypted and anything else as readable.
var probeByContent = pipeline.ProbeFunc(func(data []byte) pdfdoc.ProbeResult {
	if string(data) == "locked" {
		return pdfdoc.ProbeResult{Kind: pdfdoc.ProbeNeedsPassword}
	}
	return pdfdoc.ProbeResult{Kind: pdfdoc.ProbeReady, Pages: 1}
})

// fakeExtractStep emits one transaction per file without rendering anything.
type fakeExtractStep struct{}

func (fakeExtractStep) Name() string { return "extract" }

func (fakeExtractStep) Execute(ctx context.Context, run *pipeline.FileRun) error {
	run.Transactions = []domain.Transaction{{
		Date:        "2024-01-05",
		Description: "Coffee at " + run.File.Name(),
		Debit:       amount(4.5),
		Balance:     120,
		SourceFile:  run.File.Name(),
	}}
	return nil
}

type fakeAdvisor struct{}

func (fakeAdvisor) Insights(ctx context.Context, txs []domain.Transaction) (*domain.FinancialInsights, error) {
	return &domain.FinancialInsights{Summary: domain.Summarize(txs), Insights: []string{"Coffee adds up"}}, nil
}

func (fakeAdvisor) GoalPlan(ctx context.Context, txs []domain.Transaction, goal domain.GoalInput) (*domain.GoalPlan, error) {
	return &domain.GoalPlan{GoalName: goal.GoalName, MonthlySavingsTarget: goal.TargetAmount / float64(goal.Years*12)}, nil
}

type testServer struct {
	*httptest.Server
	registry *session.Registry
	metrics  *metrics.Metrics
}

func newTestServer(t *testing.T, monthlyLimit int) *testServer {
	t.Helper()
	log := zerolog.Nop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	gate := usage.NewGate(usage.NewMemoryLedger(), monthlyLimit)
	converter := pipeline.NewConverter(
		probeByContent,
		pipeline.NewPipeline(fakeExtractStep{}),
		fakeAdvisor{},
		pipeline.WithUsageGate(gate),
		pipeline.WithMetrics(m),
	)

	registry := session.NewRegistry()
	store := inmemory.NewStore()
	queue := inmemory.NewQueue(10, store, 1, 0)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, queue.Start(ctx, handlers.NewConversionJobHandler(registry, converter, m, log)))

	hub := events.NewHub(log)
	router := NewRouter(Config{
		Sessions:       handlers.NewSessionsHandler(registry, converter, queue, hub, log),
		Jobs:           handlers.NewJobsHandler(store, log),
		Usage:          handlers.NewUsageHandler(gate, log),
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Log:            log,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		_ = queue.Stop(context.Background())
	})
	return &testServer{Server: srv, registry: registry, metrics: m}
}

type upload struct {
	name    string
	content string
}

func (ts *testServer) createSession(t *testing.T, user string, files ...upload) (*http.Response, session.Snapshot) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.name)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.content))
		require.NoError(t, err)
		require.NoError(t, mw.WriteField("modified_"+f.name, "1700000000000"))
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/sessions", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(middleware.UserIDHeader, user)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var snap session.Snapshot
	data, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(data, &snap)
	return resp, snap
}

func (ts *testServer) do(t *testing.T, method, path, user string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	require.NoError(t, err)
	req.Header.Set(middleware.UserIDHeader, user)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (ts *testServer) waitForState(t *testing.T, id string, want session.State) {
	t.Helper()
	s, err := ts.registry.Get(id)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.State() == want }, 2*time.Second, 5*time.Millisecond)
}

func TestCreateSessionProbesFiles(t *testing.T) {
	ts := newTestServer(t, -1)

	resp, snap := ts.createSession(t, "alice",
		upload{"jan.pdf", "plain"},
		upload{"feb.pdf", "locked"},
		upload{"notes.txt", "hello"},
	)

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, session.StateFilesSelected, snap.State)
	assert.Equal(t, session.NonPDFWarning, snap.Warning)
	require.Len(t, snap.Files, 2)
	assert.Equal(t, "jan.pdf-1700000000000", snap.Files[0].ID)
	assert.Equal(t, session.StatusReady, snap.Files[0].Status)
	assert.Equal(t, session.StatusNeedsPassword, snap.Files[1].Status)
	assert.False(t, snap.Ready)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestCreateSessionRejectsNonPDFOnly(t *testing.T) {
	ts := newTestServer(t, -1)

	resp, _ := ts.createSession(t, "alice", upload{"notes.txt", "hello"})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, ts.registry.Len())
}

func TestConvertAndExport(t *testing.T) {
	ts := newTestServer(t, -1)
	_, snap := ts.createSession(t, "alice", upload{"jan.pdf", "plain"}, upload{"feb.pdf", "plain"})

	resp := ts.do(t, http.MethodPost, "/api/sessions/"+snap.ID+"/convert", "alice", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	accepted := decode[map[string]string](t, resp)
	assert.NotEmpty(t, accepted["job_id"])

	ts.waitForState(t, snap.ID, session.StateSuccess)

	got := decode[session.Snapshot](t, ts.do(t, http.MethodGet, "/api/sessions/"+snap.ID, "alice", nil))
	assert.Len(t, got.Transactions, 2)
	require.NotNil(t, got.Insights)
	assert.Equal(t, 9.0, got.Insights.Summary.TotalSpending)

	csvResp := ts.do(t, http.MethodGet, "/api/sessions/"+snap.ID+"/export", "alice", nil)
	require.Equal(t, http.StatusOK, csvResp.StatusCode)
	assert.Contains(t, csvResp.Header.Get("Content-Disposition"), "combined_transactions.csv")
	body, err := io.ReadAll(csvResp.Body)
	require.NoError(t, err)
	lines := strings.Split(string(body), "\n")
	assert.Equal(t, "Date,Description,Debit,Credit,Balance,SourceFile", lines[0])
	assert.Equal(t, `"2024-01-05","Coffee at jan.pdf",4.5,,120,"jan.pdf"`, lines[1])

	jobResp := ts.do(t, http.MethodGet, "/api/jobs/"+accepted["job_id"], "alice", nil)
	assert.Equal(t, http.StatusOK, jobResp.StatusCode)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/jobs/"+accepted["job_id"], "bob", nil).StatusCode)

	list := decode[map[string]any](t, ts.do(t, http.MethodGet, "/api/jobs?session_id="+snap.ID, "alice", nil))
	assert.Equal(t, 1.0, list["count"])
}

func TestConvertNeedsPassword(t *testing.T) {
	ts := newTestServer(t, -1)
	_, snap := ts.createSession(t, "alice", upload{"jan.pdf", "plain"}, upload{"feb.pdf", "locked"})
	lockedID := snap.Files[1].ID

	resp := ts.do(t, http.MethodPost, "/api/sessions/"+snap.ID+"/convert", "alice", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = ts.do(t, http.MethodPut, "/api/sessions/"+snap.ID+"/files/"+lockedID+"/password", "alice", map[string]string{"password": "hunter2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, true, body["ready"])
	assert.NotContains(t, body["file"], "password")

	resp = ts.do(t, http.MethodPut, "/api/sessions/"+snap.ID+"/files/missing/password", "alice", map[string]string{"password": "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/sessions/"+snap.ID+"/convert", "alice", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	ts.waitForState(t, snap.ID, session.StateSuccess)
}

func TestConvertQuotaExceeded(t *testing.T) {
	ts := newTestServer(t, 0)
	_, snap := ts.createSession(t, "alice", upload{"jan.pdf", "plain"})

	resp := ts.do(t, http.MethodPost, "/api/sessions/"+snap.ID+"/convert", "alice", nil)

	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	s, err := ts.registry.Get(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StateFilesSelected, s.State())

	usageBody := decode[map[string]any](t, ts.do(t, http.MethodGet, "/api/usage", "alice", nil))
	assert.Equal(t, 0.0, usageBody["remaining"])
}

func TestUsageHistory(t *testing.T) {
	ts := newTestServer(t, -1)
	_, snap := ts.createSession(t, "alice", upload{"jan.pdf", "plain"}, upload{"feb.pdf", "plain"})

	empty := decode[map[string]any](t, ts.do(t, http.MethodGet, "/api/usage/history", "alice", nil))
	assert.Equal(t, 0.0, empty["count"])

	require.Equal(t, http.StatusAccepted, ts.do(t, http.MethodPost, "/api/sessions/"+snap.ID+"/convert", "alice", nil).StatusCode)
	ts.waitForState(t, snap.ID, session.StateSuccess)

	var history struct {
		Conversions []struct {
			SessionID        string `json:"session_id"`
			Filename         string `json:"filename"`
			FileCount        int    `json:"file_count"`
			TransactionCount int    `json:"transaction_count"`
			Status           string `json:"status"`
		} `json:"conversions"`
		Count int `json:"count"`
	}
	resp := ts.do(t, http.MethodGet, "/api/usage/history?limit=10", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	require.Equal(t, 1, history.Count)
	got := history.Conversions[0]
	assert.Equal(t, snap.ID, got.SessionID)
	assert.Equal(t, "jan.pdf, feb.pdf", got.Filename)
	assert.Equal(t, 2, got.FileCount)
	assert.Equal(t, 2, got.TransactionCount)
	assert.Equal(t, usage.StatusSuccess, got.Status)

	other := decode[map[string]any](t, ts.do(t, http.MethodGet, "/api/usage/history", "bob", nil))
	assert.Equal(t, 0.0, other["count"])

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/usage/history?limit=zero", "alice", nil).StatusCode)
}

func TestSessionsAreScopedToUser(t *testing.T) {
	ts := newTestServer(t, -1)
	_, snap := ts.createSession(t, "alice", upload{"jan.pdf", "plain"})

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/sessions/"+snap.ID, "bob", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/sessions/unknown", "alice", nil).StatusCode)
}

func TestGoalPlanAndExportRequireResults(t *testing.T) {
	ts := newTestServer(t, -1)
	_, snap := ts.createSession(t, "alice", upload{"jan.pdf", "plain"})
	goal := domain.GoalInput{GoalName: "House", TargetAmount: 24000, Years: 2}

	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, "/api/sessions/"+snap.ID+"/goal-plan", "alice", goal).StatusCode)
	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodGet, "/api/sessions/"+snap.ID+"/export", "alice", nil).StatusCode)

	ts.do(t, http.MethodPost, "/api/sessions/"+snap.ID+"/convert", "alice", nil)
	ts.waitForState(t, snap.ID, session.StateSuccess)

	bad := ts.do(t, http.MethodPost, "/api/sessions/"+snap.ID+"/goal-plan", "alice", domain.GoalInput{GoalName: "House"})
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	resp := ts.do(t, http.MethodPost, "/api/sessions/"+snap.ID+"/goal-plan", "alice", goal)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	plan := decode[domain.GoalPlan](t, resp)
	assert.Equal(t, "House", plan.GoalName)
	assert.Equal(t, 1000.0, plan.MonthlySavingsTarget)

	tsv := ts.do(t, http.MethodGet, "/api/sessions/"+snap.ID+"/export?format=tsv", "alice", nil)
	assert.Equal(t, http.StatusOK, tsv.StatusCode)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/sessions/"+snap.ID+"/export?format=pdf", "alice", nil).StatusCode)
}

func TestResetSession(t *testing.T) {
	ts := newTestServer(t, -1)
	_, snap := ts.createSession(t, "alice", upload{"jan.pdf", "plain"})

	resp := ts.do(t, http.MethodDelete, "/api/sessions/"+snap.ID, "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[session.Snapshot](t, resp)
	assert.Equal(t, session.StateIdle, got.State)
	assert.Empty(t, got.Files)
}

func TestEventsStreamsInitialSnapshot(t *testing.T) {
	ts := newTestServer(t, -1)
	_, snap := ts.createSession(t, "alice", upload{"jan.pdf", "plain"})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/" + snap.ID + "/events"
	header := http.Header{}
	header.Set(middleware.UserIDHeader, "alice")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var initial map[string]any
	require.NoError(t, conn.ReadJSON(&initial))
	assert.Equal(t, "initial_session", initial["type"])

	ts.do(t, http.MethodPost, "/api/sessions/"+snap.ID+"/convert", "alice", nil)

	var sawSuccess bool
	for !sawSuccess {
		var u session.Update
		require.NoError(t, conn.ReadJSON(&u))
		assert.Equal(t, snap.ID, u.SessionID)
		sawSuccess = u.Kind == session.UpdateState && u.State == session.StateSuccess
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, -1)

	resp := ts.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", decode[map[string]string](t, resp)["status"])

	metricsResp := ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, metricsResp.StatusCode)
	body, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `statement_converter_http_requests_total{code="200",method="GET",route="GET /health"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, -1)

	resp := ts.do(t, http.MethodOptions, "/api/sessions", "", nil)

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), middleware.UserIDHeader)
}
