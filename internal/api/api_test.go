package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"bankfeed/internal/config"
	"bankfeed/internal/runs"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testAPIKey = "secret-run-key"

func setupRouter(t *testing.T, apiKey string) (*gin.Engine, *runs.Queue) {
	t.Helper()
	queue := runs.NewQueue(4)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = queue.Stop(ctx)
	})
	cfg := &config.Config{APIKey: apiKey}
	return NewRouter(cfg, queue), queue
}

func doRequest(r *gin.Engine, method, path, apiKey, body string) *httptest.ResponseRecorder {
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func parseBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse response body: %v", err)
	}
	return result
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := parseBody(t, rec)
	errObj, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object, got %v", body)
	}
	code, _ := errObj["code"].(string)
	return code
}

func TestAPIKeyAuth(t *testing.T) {
	t.Run("valid_key_is_accepted", func(t *testing.T) {
		router, _ := setupRouter(t, testAPIKey)
		rec := doRequest(router, http.MethodGet, "/api/v1/runs", testAPIKey, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("wrong_key_is_rejected", func(t *testing.T) {
		router, _ := setupRouter(t, testAPIKey)
		rec := doRequest(router, http.MethodGet, "/api/v1/runs", "wrong-key", "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if code := errorCode(t, rec); code != "INVALID_API_KEY" {
			t.Errorf("expected INVALID_API_KEY, got %q", code)
		}
	})

	t.Run("missing_key_is_rejected", func(t *testing.T) {
		router, _ := setupRouter(t, testAPIKey)
		rec := doRequest(router, http.MethodGet, "/api/v1/runs", "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("unconfigured_key_disables_endpoints", func(t *testing.T) {
		router, _ := setupRouter(t, "")
		rec := doRequest(router, http.MethodGet, "/api/v1/runs", "anything", "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}
		if code := errorCode(t, rec); code != "API_NOT_CONFIGURED" {
			t.Errorf("expected API_NOT_CONFIGURED, got %q", code)
		}
	})

	t.Run("health_check_needs_no_key", func(t *testing.T) {
		router, _ := setupRouter(t, testAPIKey)
		rec := doRequest(router, http.MethodGet, "/healthz", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})
}

func TestTriggerRun(t *testing.T) {
	t.Run("enqueues_a_run", func(t *testing.T) {
		router, queue := setupRouter(t, testAPIKey)
		rec := doRequest(router, http.MethodPost, "/api/v1/runs", testAPIKey,
			`{"type": "scrape", "bank": "bbva"}`)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
		}

		body := parseBody(t, rec)
		id, _ := body["id"].(string)
		if id == "" {
			t.Fatal("expected run id in response")
		}
		if body["status"] != string(runs.StatusPending) {
			t.Errorf("expected pending status, got %v", body["status"])
		}

		run, ok := queue.Get(id)
		if !ok {
			t.Fatal("run not registered in queue")
		}
		if run.Type != runs.TypeScrape || run.Bank != "bbva" {
			t.Errorf("unexpected run: %+v", run)
		}
	})

	t.Run("import_run_carries_directory_override", func(t *testing.T) {
		router, queue := setupRouter(t, testAPIKey)
		rec := doRequest(router, http.MethodPost, "/api/v1/runs", testAPIKey,
			`{"type": "manual-import", "dir": "/tmp/exports"}`)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
		}

		id, _ := parseBody(t, rec)["id"].(string)
		run, ok := queue.Get(id)
		if !ok {
			t.Fatal("run not registered in queue")
		}
		if run.Type != runs.TypeImport || run.Dir != "/tmp/exports" {
			t.Errorf("unexpected run: %+v", run)
		}
	})

	t.Run("unknown_type_is_rejected", func(t *testing.T) {
		router, _ := setupRouter(t, testAPIKey)
		rec := doRequest(router, http.MethodPost, "/api/v1/runs", testAPIKey,
			`{"type": "bogus"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
		}
		if code := errorCode(t, rec); code != "INVALID_INPUT" {
			t.Errorf("expected INVALID_INPUT, got %q", code)
		}
	})

	t.Run("missing_type_is_rejected", func(t *testing.T) {
		router, _ := setupRouter(t, testAPIKey)
		rec := doRequest(router, http.MethodPost, "/api/v1/runs", testAPIKey, `{}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestGetRun(t *testing.T) {
	t.Run("returns_completed_run_with_summary", func(t *testing.T) {
		router, queue := setupRouter(t, testAPIKey)
		queue.Start(context.Background(), 1, func(ctx context.Context, run *runs.Run) (*runs.Summary, error) {
			summary := &runs.Summary{}
			summary.Inserted = 7
			summary.SkippedDuplicate = 2
			return summary, nil
		})

		run := &runs.Run{Type: runs.TypeScrape, Bank: "bbva"}
		if err := queue.Enqueue(context.Background(), run); err != nil {
			t.Fatalf("enqueue: %v", err)
		}

		deadline := time.Now().Add(2 * time.Second)
		var rec *httptest.ResponseRecorder
		for {
			rec = doRequest(router, http.MethodGet, "/api/v1/runs/"+run.ID, testAPIKey, "")
			if body := parseBody(t, rec); body["status"] == string(runs.StatusCompleted) {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("run never completed: %s", rec.Body.String())
			}
			time.Sleep(10 * time.Millisecond)
		}

		body := parseBody(t, rec)
		summary, ok := body["summary"].(map[string]interface{})
		if !ok {
			t.Fatalf("expected summary, got %v", body)
		}
		if summary["inserted"] != float64(7) || summary["skipped_duplicate"] != float64(2) {
			t.Errorf("unexpected summary: %v", summary)
		}
	})

	t.Run("unknown_run_is_not_found", func(t *testing.T) {
		router, _ := setupRouter(t, testAPIKey)
		rec := doRequest(router, http.MethodGet, "/api/v1/runs/no-such-run", testAPIKey, "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		if code := errorCode(t, rec); code != "NOT_FOUND" {
			t.Errorf("expected NOT_FOUND, got %q", code)
		}
	})
}

func TestListRuns(t *testing.T) {
	router, queue := setupRouter(t, testAPIKey)
	for _, bank := range []string{"bbva", "caixa"} {
		if err := queue.Enqueue(context.Background(), &runs.Run{Type: runs.TypeScrape, Bank: bank}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	rec := doRequest(router, http.MethodGet, "/api/v1/runs", testAPIKey, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	list, ok := parseBody(t, rec)["runs"].([]interface{})
	if !ok {
		t.Fatal("expected runs array")
	}
	if len(list) != 2 {
		t.Errorf("expected 2 runs, got %d", len(list))
	}
}
