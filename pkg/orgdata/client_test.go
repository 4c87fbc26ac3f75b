package orgdata

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/angelmondragon/licensesync/pkg/config"
)

const searchRespBody = `{
  "data": {
    "items": [
      {
        "properties": {
          "name": "Example Corp",
          "primary_role": "company",
          "short_description": "Makes examples",
          "domain": "example.com",
          "homepage_url": "https://example.com",
          "city_name": "Sydney",
          "region_name": "New South Wales",
          "country_code": "AUS",
          "created_at": 1371717234,
          "updated_at": 1617976852
        }
      }
    ]
  }
}`

func testClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient(config.OrgDataConfig{
		BaseURL: "http://orgdata.test/v3.1",
		APIKey:  "test-key",
	}, WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestFindByDomainRequest(t *testing.T) {
	var capturedURL string
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(searchRespBody)),
			Header:     http.Header{},
		}, nil
	})

	client := testClient(t, rt)
	orgs, err := client.FindByDomain(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("find by domain: %v", err)
	}

	if !strings.HasPrefix(capturedURL, "http://orgdata.test/v3.1/odm/organizations?") {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	if !strings.Contains(capturedURL, "domain_name=example.com") {
		t.Fatalf("missing domain param in %q", capturedURL)
	}
	if !strings.Contains(capturedURL, "user_key=test-key") {
		t.Fatalf("missing api key param in %q", capturedURL)
	}

	if len(orgs) != 1 {
		t.Fatalf("expected 1 org, got %d", len(orgs))
	}
	org := orgs[0]
	if org.Name != "Example Corp" || org.Domain != "example.com" {
		t.Fatalf("unexpected org %+v", org)
	}
	if org.City != "Sydney" || org.Country != "AUS" {
		t.Fatalf("location fields not mapped: %+v", org)
	}
	if org.CreatedAt != 1371717234 || org.UpdatedAt != 1617976852 {
		t.Fatalf("epoch fields not mapped: %+v", org)
	}
}

func TestFindByNameRequest(t *testing.T) {
	var capturedURL string
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"data":{"items":[]}}`)),
			Header:     http.Header{},
		}, nil
	})

	client := testClient(t, rt)
	orgs, err := client.FindByName(context.Background(), "Example Corp")
	if err != nil {
		t.Fatalf("find by name: %v", err)
	}
	if len(orgs) != 0 {
		t.Fatalf("expected no orgs, got %d", len(orgs))
	}
	if !strings.Contains(capturedURL, "name=Example+Corp") {
		t.Fatalf("missing name param in %q", capturedURL)
	}
}

func TestSearchFailureStatuses(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusTooManyRequests,
			Body:       io.NopCloser(strings.NewReader("rate limited")),
			Header:     http.Header{},
		}, nil
	})

	client := testClient(t, rt)
	if _, err := client.FindByDomain(context.Background(), "example.com"); err == nil {
		t.Fatal("expected non-200 to fail")
	}
}

func TestValidation(t *testing.T) {
	client := testClient(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	}))

	if _, err := client.FindByDomain(context.Background(), "  "); err == nil {
		t.Fatal("expected blank domain to fail")
	}
	if _, err := client.FindByName(context.Background(), ""); err == nil {
		t.Fatal("expected blank name to fail")
	}

	if _, err := NewClient(config.OrgDataConfig{BaseURL: "http://x"}); err == nil {
		t.Fatal("expected missing api key to fail")
	}
	if _, err := NewClient(config.OrgDataConfig{APIKey: "k"}); err == nil {
		t.Fatal("expected missing base url to fail")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
