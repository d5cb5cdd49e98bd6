package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"rfm-dashboard/internal/ingest"
	"rfm-dashboard/internal/rfm"
	"rfm-dashboard/internal/services"
)

func parseHTML(t *testing.T, w *httptest.ResponseRecorder) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(w.Body)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestPageHandlers_Dashboard(t *testing.T) {
	h := NewPageHandlers(services.NewAnalyzer(testLogger(), services.Options{}), nil, 32<<20, testLogger())

	w := httptest.NewRecorder()
	h.HandleDashboard(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	doc := parseHTML(t, w)
	if doc.Find("form#upload").Length() != 1 {
		t.Error("upload form missing")
	}
	if !strings.Contains(doc.Find("form#upload small").Text(), "32 MiB") {
		t.Errorf("upload limit = %q", doc.Find("form#upload small").Text())
	}
}

func TestPageHandlers_Upload(t *testing.T) {
	analyzer := services.NewAnalyzer(testLogger(), services.Options{})
	h := NewPageHandlers(analyzer, nil, 0, testLogger())

	w := httptest.NewRecorder()
	h.HandleUpload(w, uploadRequest(t, "/analyses", "orders.csv", tenCustomers()))

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	latest, err := analyzer.Latest()
	if err != nil {
		t.Fatal(err)
	}
	if got := w.Header().Get("Location"); got != "/analyses/"+latest.ID.String() {
		t.Errorf("Location = %q", got)
	}
}

func TestPageHandlers_UploadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		status  int
		code    string
	}{
		{"schema", "Customer_ID,Sales\nC1,10\n", http.StatusUnprocessableEntity, "SCHEMA_ERROR"},
		{"empty", "Customer_ID,Order_Date,Sales\n", http.StatusUnprocessableEntity, "EMPTY_INPUT"},
		{"scoring", "Customer_ID,Order_Date,Sales\nC1,2024-01-01,1\nC2,2024-01-02,2\n", http.StatusUnprocessableEntity, "SCORING_ERROR"},
	}

	h := NewPageHandlers(services.NewAnalyzer(testLogger(), services.Options{}), nil, 0, testLogger())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.HandleUpload(w, uploadRequest(t, "/analyses", "orders.csv", tt.content))

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			doc := parseHTML(t, w)
			if code, _ := doc.Find("#notice").Attr("data-code"); code != tt.code {
				t.Errorf("notice code = %q, want %q", code, tt.code)
			}
			if doc.Find("form#upload").Length() != 1 {
				t.Error("failed upload should show the form again")
			}
		})
	}
}

func TestPageHandlers_SchemaNoticeListsFields(t *testing.T) {
	h := NewPageHandlers(services.NewAnalyzer(testLogger(), services.Options{}), nil, 0, testLogger())

	w := httptest.NewRecorder()
	h.HandleUpload(w, uploadRequest(t, "/analyses", "orders.csv", "Customer_ID\nC1\n"))

	fields := parseHTML(t, w).Find("#notice li.field")
	if fields.Length() != 2 || fields.First().Text() != "Order_Date" || fields.Last().Text() != "Sales" {
		t.Errorf("fields = %q", fields.Text())
	}
}

func TestPageHandlers_Analysis(t *testing.T) {
	analyzer, analysis := seededAnalyzer(t)
	h := NewPageHandlers(analyzer, nil, 0, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/analyses/"+analysis.ID.String(), nil)
	req.SetPathValue("id", analysis.ID.String())
	w := httptest.NewRecorder()
	h.HandleAnalysis(w, req)

	doc := parseHTML(t, w)
	if got, _ := doc.Find("#analysis").Attr("data-analysis-id"); got != analysis.ID.String() {
		t.Errorf("analysis id = %q", got)
	}
	if doc.Find("#preview tbody tr").Length() != 5 {
		t.Errorf("preview rows = %d, want 5", doc.Find("#preview tbody tr").Length())
	}

	req = httptest.NewRequest(http.MethodGet, "/analyses/missing", nil)
	req.SetPathValue("id", "missing")
	w = httptest.NewRecorder()
	h.HandleAnalysis(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestPageHandlers_SourceAnalysis(t *testing.T) {
	table, err := ingest.ReadCSV(strings.NewReader(tenCustomers()), ingest.Options{})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("configured", func(t *testing.T) {
		analyzer := services.NewAnalyzer(testLogger(), services.Options{})
		h := NewPageHandlers(analyzer, stubLoader{table: table}, 0, testLogger())

		w := httptest.NewRecorder()
		h.HandleSourceAnalysis(w, httptest.NewRequest(http.MethodPost, "/analyses/source", nil))

		if w.Code != http.StatusSeeOther {
			t.Fatalf("status = %d", w.Code)
		}
		latest, err := analyzer.Latest()
		if err != nil || latest.Source != "postgres:public.transactions" {
			t.Errorf("latest = %+v, %v", latest, err)
		}
	})

	t.Run("schema failure", func(t *testing.T) {
		loader := stubLoader{err: &rfm.SchemaError{Missing: []string{"Sales"}}}
		analyzer := services.NewAnalyzer(testLogger(), services.Options{})
		h := NewPageHandlers(analyzer, loader, 0, testLogger())

		w := httptest.NewRecorder()
		h.HandleSourceAnalysis(w, httptest.NewRequest(http.MethodPost, "/analyses/source", nil))
		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d", w.Code)
		}
		if got := analyzer.Stats()["analyses_failed"]; got != int64(1) {
			t.Errorf("analyses_failed = %v, want 1", got)
		}
	})

	t.Run("connection failure", func(t *testing.T) {
		loader := stubLoader{err: errors.New("connection refused")}
		h := NewPageHandlers(services.NewAnalyzer(testLogger(), services.Options{}), loader, 0, testLogger())

		w := httptest.NewRecorder()
		h.HandleSourceAnalysis(w, httptest.NewRequest(http.MethodPost, "/analyses/source", nil))
		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d", w.Code)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		h := NewPageHandlers(services.NewAnalyzer(testLogger(), services.Options{}), nil, 0, testLogger())

		w := httptest.NewRecorder()
		h.HandleSourceAnalysis(w, httptest.NewRequest(http.MethodPost, "/analyses/source", nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d", w.Code)
		}
	})
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:        "any size",
		32 << 20: "32 MiB",
		64 << 10: "64 KiB",
		1500:     "1500 bytes",
	}
	for n, want := range tests {
		if got := formatBytes(n); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", n, got, want)
		}
	}
}
