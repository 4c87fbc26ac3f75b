package marketplace

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/licensesync/pkg/config"
	pkgerrors "github.com/angelmondragon/licensesync/pkg/errors"
)

func testConfig() config.MarketplaceConfig {
	return config.MarketplaceConfig{
		BaseURL:  "http://reporting.test",
		VendorID: "987654",
		Username: "reporting@example.com",
		Password: "secret",
	}
}

func TestExportWritesArtifact(t *testing.T) {
	const respBody = `[{"licenseId":"SEN-100","addonKey":"com.example.addon"}]`

	var capturedURL string
	var capturedAuth string

	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		capturedAuth = req.Header.Get("Authorization")
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(respBody)),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient(testConfig(), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	outPath := filepath.Join(t.TempDir(), "licenses_export.json")
	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if err := client.Export(context.Background(), outPath, since); err != nil {
		t.Fatalf("export: %v", err)
	}

	wantURL := "http://reporting.test/rest/2/vendors/987654/reporting/licenses/export?lastUpdated=2026-08-01"
	if capturedURL != wantURL {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	if !strings.HasPrefix(capturedAuth, "Basic ") {
		t.Fatalf("expected basic auth header, got %q", capturedAuth)
	}

	written, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(written) != respBody {
		t.Fatalf("artifact content mismatch: %s", written)
	}
	if _, err := os.Stat(outPath + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file should be renamed away, stat err=%v", err)
	}
}

func TestExportOmitsParamForZeroWatermark(t *testing.T) {
	var capturedURL string
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader("[]")),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient(testConfig(), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	outPath := filepath.Join(t.TempDir(), "licenses_export.json")
	if err := client.Export(context.Background(), outPath, time.Time{}); err != nil {
		t.Fatalf("export: %v", err)
	}

	if strings.Contains(capturedURL, "lastUpdated") {
		t.Fatalf("expected no lastUpdated param, got %q", capturedURL)
	}
}

func TestExportRejectsMalformedPayload(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"not":"an array"`)),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient(testConfig(), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	outPath := filepath.Join(t.TempDir(), "licenses_export.json")
	err = client.Export(context.Background(), outPath, time.Time{})
	if err == nil {
		t.Fatal("expected malformed payload to fail")
	}
	if _, statErr := os.Stat(outPath); !os.IsNotExist(statErr) {
		t.Fatalf("no artifact should be written on failure, stat err=%v", statErr)
	}
}

func TestExportMapsAuthFailures(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusUnauthorized,
			Body:       io.NopCloser(strings.NewReader("bad credentials")),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient(testConfig(), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	err = client.Export(context.Background(), filepath.Join(t.TempDir(), "out.json"), time.Time{})
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized code, got %v", err)
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	cfg := testConfig()
	cfg.VendorID = ""
	if _, err := NewClient(cfg); err == nil {
		t.Fatal("expected missing vendor id to fail")
	}

	cfg = testConfig()
	cfg.Password = ""
	if _, err := NewClient(cfg); err == nil {
		t.Fatal("expected missing credentials to fail")
	}

	cfg = testConfig()
	cfg.BaseURL = ""
	if _, err := NewClient(cfg); err == nil {
		t.Fatal("expected missing base url to fail")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
