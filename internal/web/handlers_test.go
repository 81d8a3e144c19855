package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/csvimport/internal/config"
	"github.com/JonMunkholm/csvimport/internal/core"
	"github.com/JonMunkholm/csvimport/internal/files"
	"github.com/JonMunkholm/csvimport/internal/stats"
)

const itemsCSV = "sku,qty\nA,1\n,2\nC,x\n"

type testServer struct {
	srv       *Server
	processed atomic.Int32
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()

	cfg := &config.Config{}
	cfg.Upload.MaxFileSize = 1 << 20
	if mutate != nil {
		mutate(cfg)
	}

	ts := &testServer{}
	reg := core.NewRegistry()
	require.NoError(t, reg.Add(core.OperationDefinition{
		PageID: "shop",
		ID:     "items",
		Label:  "Items",
		Fields: []core.FieldDefinition{
			{Key: "sku", Label: "SKU", Type: core.TypeString, Required: true},
			{Key: "qty", Label: "Quantity", Type: core.TypeInteger},
		},
		Processor: core.RowProcessorFunc(func(ctx context.Context, row core.ProcessedRow, meta core.RowMeta) (core.Outcome, error) {
			ts.processed.Add(1)
			return core.OutcomeCreated, nil
		}),
	}))
	require.NoError(t, reg.Add(core.OperationDefinition{
		PageID: "crm",
		ID:     "contacts",
		Fields: []core.FieldDefinition{{Key: "email", Type: core.TypeEmail}},
		Processor: core.RowProcessorFunc(func(ctx context.Context, row core.ProcessedRow, meta core.RowMeta) (core.Outcome, error) {
			return core.OutcomeCreated, nil
		}),
	}))

	storage, err := files.NewLocalStorage(t.TempDir(), "/media")
	require.NoError(t, err)
	store, err := files.NewStore(storage, "utf-8", cfg.Upload.MaxFileSize)
	require.NoError(t, err)

	svc := core.NewService(reg, store, stats.NewMemoryStore(0), nil, nil, core.ServiceConfig{DefaultBatchSize: 2})
	ts.srv = NewServer(svc, store, cfg)
	t.Cleanup(func() { _ = ts.srv.Shutdown(context.Background()) })
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) upload(t *testing.T, path, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "items.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "batches")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestListOperations(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/api/operations", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	ops := decode[[]operationSummary](t, rec)
	require.Len(t, ops, 2)
	assert.Equal(t, "crm", ops[0].PageID)
	assert.Equal(t, "shop", ops[1].PageID)

	rec = ts.do(t, http.MethodGet, "/api/operations?page=shop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ops = decode[[]operationSummary](t, rec)
	require.Len(t, ops, 1)
	assert.Equal(t, "shop", ops[0].PageID)
	assert.Equal(t, "items", ops[0].ID)
	require.Len(t, ops[0].Fields, 2)
	assert.Equal(t, "SKU", ops[0].Fields[0].Label)
	assert.True(t, ops[0].Fields[0].Required)
}

func TestImportFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	base := "/api/imports/shop/items"

	rec := ts.upload(t, base+"/upload", itemsCSV)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	up := decode[struct {
		File      string        `json:"file"`
		TotalRows int           `json:"total_rows"`
		FieldMap  core.FieldMap `json:"field_map"`
	}](t, rec)
	require.NotEmpty(t, up.File)
	assert.Equal(t, 3, up.TotalRows)
	assert.Equal(t, core.FieldMap{"sku": "sku", "qty": "qty"}, up.FieldMap)

	rec = ts.do(t, http.MethodGet, base+"/preview?file="+up.File+"&rows=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	preview := decode[core.Preview](t, rec)
	assert.Equal(t, []string{"sku", "qty"}, preview.Headers)
	assert.Equal(t, [][]string{{"A", "1"}}, preview.Rows)
	assert.Equal(t, 3, preview.TotalRows)

	rec = ts.do(t, http.MethodGet, base+"/field-map?file="+up.File, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/dry-run", dryRunRequest{File: up.File, FieldMap: up.FieldMap})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[core.DryRunReport](t, rec)
	assert.Equal(t, 3, report.TotalRows)
	assert.Equal(t, 2, report.ErrorCount)
	assert.Equal(t, 1, report.ValidRows)
	assert.Zero(t, ts.processed.Load(), "dry run must not process rows")

	rec = ts.do(t, http.MethodPost, base+"/start", startRequest{File: up.File, Name: "items.csv"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	start := decode[core.StartResponse](t, rec)
	assert.Equal(t, 3, start.TotalItems)
	assert.Equal(t, 2, start.BatchSize)
	assert.Equal(t, core.StatusRunning, start.Stats.Status)

	rec = ts.do(t, http.MethodPost, base+"/batch", batchRequest{File: up.File, Offset: 0, FieldMap: up.FieldMap})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	batch := decode[core.BatchResponse](t, rec)
	assert.Equal(t, 1, batch.Created)
	assert.Equal(t, 1, batch.Failed)
	assert.True(t, batch.HasMore)
	assert.Equal(t, 2, batch.NextOffset)
	assert.Equal(t, 67, batch.Percentage)

	rec = ts.do(t, http.MethodPost, base+"/batch", batchRequest{File: up.File, Offset: batch.NextOffset, FieldMap: up.FieldMap})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	batch = decode[core.BatchResponse](t, rec)
	assert.False(t, batch.HasMore)
	assert.Equal(t, 100, batch.Percentage)

	rec = ts.do(t, http.MethodPost, base+"/complete", completeRequest{Status: core.StatusComplete, File: up.File})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode[statsResponse](t, rec)
	assert.Equal(t, core.StatusComplete, done.Stats.Status)
	assert.Equal(t, 1, done.Stats.Created)
	assert.Equal(t, 2, done.Stats.Failed)
	require.Len(t, done.Stats.Errors, 2)
	assert.Equal(t, 2, done.Stats.Errors[0].Row)
	assert.Equal(t, "SKU is required.", done.Stats.Errors[0].Message)

	rec = ts.do(t, http.MethodGet, base+"/preview?file="+up.File, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "file is discarded on completion")

	rec = ts.do(t, http.MethodGet, base+"/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, decode[statsResponse](t, rec).Percentage)

	rec = ts.do(t, http.MethodDelete, base+"/stats", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodGet, base+"/stats", nil)
	assert.Equal(t, core.StatusNone, decode[statsResponse](t, rec).Stats.Status)
}

func TestRequestCancelStopsNextBatch(t *testing.T) {
	ts := newTestServer(t, nil)
	base := "/api/imports/shop/items"

	up := decode[struct {
		File string `json:"file"`
	}](t, ts.upload(t, base+"/upload", itemsCSV))
	fm := core.FieldMap{"sku": "sku", "qty": "qty"}

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, base+"/start", startRequest{File: up.File}).Code)

	rec := ts.do(t, http.MethodPost, base+"/request-cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[statsResponse](t, rec).Stats.CancelRequested)

	rec = ts.do(t, http.MethodPost, base+"/batch", batchRequest{File: up.File, FieldMap: fm})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	batch := decode[core.BatchResponse](t, rec)
	assert.Equal(t, core.StatusCancelled, batch.Status)
	assert.Zero(t, batch.Processed)
	assert.Zero(t, ts.processed.Load())
}

func TestErrorResponses(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown operation", http.MethodGet, "/api/imports/shop/nope/stats", nil, http.StatusNotFound, "IMP001"},
		{"batch with unknown file", http.MethodPost, "/api/imports/shop/items/batch",
			batchRequest{File: "x.csv", FieldMap: core.FieldMap{}}, http.StatusNotFound, "FILE001"},
		{"complete idle run", http.MethodPost, "/api/imports/shop/items/complete",
			completeRequest{Status: core.StatusComplete}, http.StatusConflict, "IMP002"},
		{"missing file", http.MethodGet, "/api/imports/shop/items/preview?file=00000000-0000-0000-0000-000000000000.csv", nil, http.StatusNotFound, "FILE001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Message)
			assert.Equal(t, resp.Message+" (Code: "+tt.code+"). "+resp.Action, resp.Error)
		})
	}
}

func TestBadRequests(t *testing.T) {
	ts := newTestServer(t, nil)
	base := "/api/imports/shop/items"

	rec := ts.do(t, http.MethodPost, base+"/start", map[string]string{"name": "no file"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/batch", map[string]any{"file": "a.csv", "offset": -1, "field_map": map[string]string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/complete", map[string]string{"status": "running"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, base+"/preview", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, base+"/preview?file=a.csv&rows=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.upload(t, base+"/upload", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: -1", core.ErrInvalidOffset), http.StatusBadRequest},
		{core.ErrTooManyBatches, http.StatusServiceUnavailable},
		{fmt.Errorf("batch: %w", core.ErrRunFinished), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestUploadTooLarge(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) { cfg.Upload.MaxFileSize = 16 })
	rec := ts.upload(t, "/api/imports/shop/items/upload", "sku,qty\n"+strings.Repeat("A,1\n", 20))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
	assert.Equal(t, "FILE002", decode[ErrorResponse](t, rec).Code)
}

func TestSampleDownload(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/api/imports/shop/items/sample", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "shop-items-sample.csv")
	assert.Equal(t, "sku,qty\nSKU-001,10\n", rec.Body.String())
}

func TestAPIKeyRequired(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Security.RequireAPIKey = true
		cfg.Security.APIKeys = []string{"secret"}
	})

	rec := ts.do(t, http.MethodGet, "/api/operations", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/operations", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health is not behind auth")
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Rate.Enabled = true
		cfg.Rate.RequestsPerMinute = 2
	})

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", nil).Code)
	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestSanitizeErrorMessage(t *testing.T) {
	assert.Equal(t, "open [path]: no such file", sanitizeErrorMessage("open /var/data/uploads/x.csv: no such file"))
	assert.Equal(t, "dial [redacted] failed", sanitizeErrorMessage("dial postgres://user:pw@db:5432/app failed"))
	assert.Equal(t, "rate limit exceeded", sanitizeErrorMessage("rate limit exceeded"))
}
