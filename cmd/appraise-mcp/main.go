package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/appraise/models"
)

// pollInterval is the delay between run status requests.
var pollInterval = 2 * time.Second

func main() {
	apiURL := os.Getenv("APPRAISE_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("APPRAISE_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "APPRAISE_API_KEY is required")
		os.Exit(1)
	}

	s := newServer(&client{
		baseURL: strings.TrimRight(apiURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	})
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newServer(c *client) *server.MCPServer {
	s := server.NewMCPServer(
		"appraise",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("extract_listings",
		mcp.WithDescription("Extract Avito or Cian real-estate listings: title, normalized monthly price, price history, address, description, parameters and screenshot paths. "+
			"Runs are processed one at a time; if a page shows a CAPTCHA the run waits until an operator solves it and calls resume_run."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("Listing page URLs, processed in order"),
		),
		mcp.WithBoolean("screenshots",
			mcp.Description("Capture screenshot evidence (server default when omitted)"),
		),
		mcp.WithNumber("wait_seconds",
			mcp.Description("How long to wait for the run before returning its current status (default: 300)"),
		),
	), handleExtract(c))

	s.AddTool(mcp.NewTool("run_status",
		mcp.WithDescription("Return the status, progress, pending intervention and records of a run."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Run id returned by extract_listings"),
		),
	), handleStatus(c))

	s.AddTool(mcp.NewTool("resume_run",
		mcp.WithDescription("Continue a run that waits for an operator, after the CAPTCHA or login in the browser window was handled."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Run id"),
		),
	), handleResume(c))

	return s
}

// client calls the operator API.
type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func (c *client) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var e models.ErrorResponse
		if json.Unmarshal(data, &e) == nil && e.Error.Code != "" {
			return fmt.Errorf("[%s] %s", e.Error.Code, e.Error.Message)
		}
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// wait polls a run until it finishes, waits for an operator, or ctx ends.
func (c *client) wait(ctx context.Context, id string) (*models.RunStatusResponse, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		var status models.RunStatusResponse
		if err := c.do(ctx, http.MethodGet, "/api/v1/runs/"+id, nil, &status); err != nil {
			return nil, err
		}
		switch status.Status {
		case models.RunCompleted, models.RunStopped, models.RunAwaiting:
			return &status, nil
		}
		select {
		case <-ctx.Done():
			return &status, nil
		case <-ticker.C:
		}
	}
}

func handleExtract(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls, err := request.RequireStringSlice("urls")
		if err != nil || len(urls) == 0 {
			return mcp.NewToolResultError("urls is required and must be an array of strings"), nil
		}
		req := models.RunRequest{URLs: urls}
		if args := request.GetArguments(); args["screenshots"] != nil {
			shots := request.GetBool("screenshots", true)
			req.Screenshots = &shots
		}

		var created models.RunResponse
		if err := c.do(ctx, http.MethodPost, "/api/v1/runs", req, &created); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("run request failed: %v", err)), nil
		}

		waitFor := time.Duration(request.GetFloat("wait_seconds", 300)) * time.Second
		waitCtx, cancel := context.WithTimeout(ctx, waitFor)
		defer cancel()
		status, err := c.wait(waitCtx, created.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling run %s failed: %v", created.ID, err)), nil
		}
		return mcp.NewToolResultText(formatStatus(status)), nil
	}
}

func handleStatus(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}
		var status models.RunStatusResponse
		if err := c.do(ctx, http.MethodGet, "/api/v1/runs/"+id, nil, &status); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatStatus(&status)), nil
	}
}

func handleResume(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}
		var status models.RunStatusResponse
		if err := c.do(ctx, http.MethodPost, "/api/v1/runs/"+id+"/resume", nil, &status); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Run %s resumed (%d/%d listings done).", id, status.Completed, status.Total)), nil
	}
}

// formatStatus renders a summary line followed by the records as JSON.
func formatStatus(s *models.RunStatusResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s: %s, %d/%d listings done\n", s.ID, s.Status, s.Completed, s.Total)
	if p := s.Pending; p != nil {
		fmt.Fprintf(&b, "Waiting for an operator on %s (%s) since %s. Solve it in the browser, then call resume_run.\n",
			p.URL, p.Reason, p.Since.Format(time.RFC3339))
	}
	if len(s.Records) > 0 {
		data, err := json.MarshalIndent(s.Records, "", "  ")
		if err == nil {
			b.WriteString("\n")
			b.Write(data)
		}
	}
	return b.String()
}
