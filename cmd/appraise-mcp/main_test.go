package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/use-agent/appraise/models"
)

// fakeAPI answers like the operator API: the run waits for an operator on
// the first poll and completes after resume.
func fakeAPI(t *testing.T) (*httptest.Server, *atomic.Bool) {
	t.Helper()
	var resumed atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/runs", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(models.ErrorResponse{Error: models.ErrorDetail{Code: models.ErrCodeUnauthorized, Message: "invalid API key"}})
			return
		}
		var req models.RunRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(models.RunResponse{ID: "r1", Status: models.RunQueued, Total: len(req.URLs)})
	})
	mux.HandleFunc("GET /api/v1/runs/r1", func(w http.ResponseWriter, r *http.Request) {
		s := models.RunStatusResponse{ID: "r1", Total: 1}
		if resumed.Load() {
			s.Status, s.Completed = models.RunCompleted, 1
			s.Records = []*models.ListingRecord{{URL: "https://www.avito.ru/a_1", Status: models.StatusOK, Title: "Офис, 50 м²"}}
		} else {
			s.Status = models.RunAwaiting
			s.Pending = &models.PendingIntervention{URL: "https://www.avito.ru/a_1", Reason: "blocked", Since: time.Now()}
		}
		_ = json.NewEncoder(w).Encode(s)
	})
	mux.HandleFunc("POST /api/v1/runs/r1/resume", func(w http.ResponseWriter, r *http.Request) {
		resumed.Store(true)
		_ = json.NewEncoder(w).Encode(models.RunStatusResponse{ID: "r1", Status: models.RunRunning, Total: 1})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &resumed
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type %T", res.Content[0])
	}
	return tc.Text
}

func TestExtractWaitResume(t *testing.T) {
	pollInterval = 10 * time.Millisecond
	srv, _ := fakeAPI(t)
	c := &client{baseURL: srv.URL, apiKey: "k", http: srv.Client()}
	ctx := context.Background()

	res, err := handleExtract(c)(ctx, call(map[string]any{"urls": []any{"https://www.avito.ru/a_1"}}))
	if err != nil || res.IsError {
		t.Fatalf("extract_listings = %v, %v", res, err)
	}
	if out := text(t, res); !strings.Contains(out, "awaiting_operator") || !strings.Contains(out, "resume_run") {
		t.Errorf("extract output = %q", out)
	}

	res, err = handleResume(c)(ctx, call(map[string]any{"id": "r1"}))
	if err != nil || res.IsError {
		t.Fatalf("resume_run = %v, %v", res, err)
	}

	res, err = handleStatus(c)(ctx, call(map[string]any{"id": "r1"}))
	if err != nil || res.IsError {
		t.Fatalf("run_status = %v, %v", res, err)
	}
	if out := text(t, res); !strings.Contains(out, "completed, 1/1") || !strings.Contains(out, "Офис") {
		t.Errorf("status output = %q", out)
	}
}

func TestExtractRequiresURLs(t *testing.T) {
	srv, _ := fakeAPI(t)
	c := &client{baseURL: srv.URL, apiKey: "k", http: srv.Client()}
	res, err := handleExtract(c)(context.Background(), call(map[string]any{}))
	if err != nil || !res.IsError {
		t.Errorf("missing urls = %v, %v", res, err)
	}
}

func TestAPIErrorSurfaced(t *testing.T) {
	srv, _ := fakeAPI(t)
	c := &client{baseURL: srv.URL, apiKey: "wrong", http: srv.Client()}
	res, err := handleExtract(c)(context.Background(), call(map[string]any{"urls": []any{"https://www.avito.ru/a_1"}}))
	if err != nil || !res.IsError {
		t.Fatalf("result = %v, %v", res, err)
	}
	if out := text(t, res); !strings.Contains(out, models.ErrCodeUnauthorized) {
		t.Errorf("error text = %q", out)
	}
}
