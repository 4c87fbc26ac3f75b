package orgdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/licensesync/pkg/config"
	pkgerrors "github.com/angelmondragon/licensesync/pkg/errors"
)

const (
	organizationsPath           = "odm/organizations"
	apiKeyParam                 = "user_key"
	responseBodyReadLimit int64 = 1024
)

var (
	errBaseURLRequired = errors.New("orgdata base url is required")
	errAPIKeyRequired  = errors.New("orgdata api key is required")
)

// Organization is one candidate company returned by the data provider.
// CreatedAt/UpdatedAt are provider-side epoch seconds.
type Organization struct {
	Name             string
	PrimaryRole      string
	ShortDescription string
	Domain           string
	HomepageURL      string
	FacebookURL      string
	TwitterURL       string
	LinkedinURL      string
	APIURL           string
	City             string
	Region           string
	Country          string
	StockExchange    string
	StockSymbol      string
	CreatedAt        int64
	UpdatedAt        int64
}

// Client queries the organization data provider used for enrichment.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured provider base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the provider client from configuration.
func NewClient(cfg config.OrgDataConfig, opts ...Option) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: timeout}
	}

	return client, nil
}

// FindByDomain returns candidate organizations registered under the domain.
func (c *Client) FindByDomain(ctx context.Context, domain string) ([]Organization, error) {
	trimmed := strings.TrimSpace(domain)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "domain is required")
	}
	return c.search(ctx, url.Values{"domain_name": []string{trimmed}})
}

// FindByName returns candidate organizations matching the company name.
func (c *Client) FindByName(ctx context.Context, name string) ([]Organization, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	return c.search(ctx, url.Values{"name": []string{trimmed}})
}

func (c *Client) search(ctx context.Context, params url.Values) ([]Organization, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orgdata client not configured")
	}

	params.Set(apiKeyParam, c.apiKey)
	endpoint := c.buildURL(organizationsPath) + "?" + params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build organization search request")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute organization search request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "organization search rejected")
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "organization search failed")
	}

	var apiResp struct {
		Data struct {
			Items []struct {
				Properties struct {
					Name             string `json:"name"`
					PrimaryRole      string `json:"primary_role"`
					ShortDescription string `json:"short_description"`
					Domain           string `json:"domain"`
					HomepageURL      string `json:"homepage_url"`
					FacebookURL      string `json:"facebook_url"`
					TwitterURL       string `json:"twitter_url"`
					LinkedinURL      string `json:"linkedin_url"`
					APIURL           string `json:"api_url"`
					City             string `json:"city_name"`
					Region           string `json:"region_name"`
					Country          string `json:"country_code"`
					StockExchange    string `json:"stock_exchange"`
					StockSymbol      string `json:"stock_symbol"`
					CreatedAt        int64  `json:"created_at"`
					UpdatedAt        int64  `json:"updated_at"`
				} `json:"properties"`
			} `json:"items"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode organization search response")
	}

	orgs := make([]Organization, 0, len(apiResp.Data.Items))
	for _, item := range apiResp.Data.Items {
		p := item.Properties
		orgs = append(orgs, Organization{
			Name:             p.Name,
			PrimaryRole:      p.PrimaryRole,
			ShortDescription: p.ShortDescription,
			Domain:           p.Domain,
			HomepageURL:      p.HomepageURL,
			FacebookURL:      p.FacebookURL,
			TwitterURL:       p.TwitterURL,
			LinkedinURL:      p.LinkedinURL,
			APIURL:           p.APIURL,
			City:             p.City,
			Region:           p.Region,
			Country:          p.Country,
			StockExchange:    p.StockExchange,
			StockSymbol:      p.StockSymbol,
			CreatedAt:        p.CreatedAt,
			UpdatedAt:        p.UpdatedAt,
		})
	}

	return orgs, nil
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
