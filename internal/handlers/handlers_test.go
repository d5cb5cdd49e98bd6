package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"rfm-dashboard/internal/ingest"
	"rfm-dashboard/internal/services"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// tenCustomers gives every metric ten distinct values.
func tenCustomers() string {
	var b strings.Builder
	b.WriteString("Customer_ID,Order_Date,Sales\n")
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&b, "C%02d,2024-01-%02d,%d.50\n", i, i, i*10)
	}
	return b.String()
}

func uploadRequest(t *testing.T, target, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(datasetField, filename)
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(part, content)
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func seededAnalyzer(t *testing.T) (*services.Analyzer, *services.Analysis) {
	t.Helper()
	analyzer := services.NewAnalyzer(testLogger(), services.Options{})
	analysis, err := analyzer.Analyze(context.Background(), "orders.csv", strings.NewReader(tenCustomers()))
	if err != nil {
		t.Fatal(err)
	}
	return analyzer, analysis
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code   string   `json:"code"`
		Fields []string `json:"fields"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return env
}

type stubLoader struct {
	table *ingest.Table
	err   error
}

func (s stubLoader) Name() string { return "postgres:public.transactions" }

func (s stubLoader) Load(context.Context) (*ingest.Table, error) {
	return s.table, s.err
}
