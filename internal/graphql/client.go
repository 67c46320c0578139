// Package graphql fetches credential registration events from a Kadena
// GraphQL indexer.
package graphql

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mahdiidarabi/passkey-wallet/internal/transport"
	"github.com/mahdiidarabi/passkey-wallet/pkg/passkeywallet"
)

// Default endpoints per network.
const (
	DevelopmentEndpoint = "http://localhost:8080/graphql"
	TestnetEndpoint     = "https://graph.testnet.kadena.network/graphql"
	MainnetEndpoint     = "https://graph.kadena.network/graphql"
)

const eventsQuery = `query getCredentials($qualifiedName: String!, $filter: String, $first: Int!, $after: String) {
  events(
    qualifiedEventName: $qualifiedName
    parametersFilter: $filter
    first: $first
    after: $after
  ) {
    totalCount
    edges {
      cursor
      node {
        chainId
        parameters
      }
    }
  }
}`

// Config configures a Client.
type Config struct {
	// Endpoints overrides the endpoint of individual networks.
	Endpoints map[string]string
	APIKey    string
	RetryMax  int
	Timeout   time.Duration
	Logger    *slog.Logger
}

// Client implements passkeywallet.PageFetcher.
type Client struct {
	endpoints map[string]string
	http      *transport.Client
	logger    *slog.Logger
}

// New creates a GraphQL client.
func New(cfg Config) *Client {
	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["x-api-key"] = cfg.APIKey
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		endpoints: cfg.Endpoints,
		http: transport.New(transport.Options{
			RetryMax: cfg.RetryMax,
			Timeout:  cfg.Timeout,
			Headers:  headers,
			Logger:   cfg.Logger,
		}),
		logger: logger,
	}
}

// Endpoint returns the GraphQL endpoint for networkID.
func (c *Client) Endpoint(networkID string) string {
	if ep, ok := c.endpoints[networkID]; ok && ep != "" {
		return ep
	}
	return DefaultEndpoint(networkID)
}

// DefaultEndpoint returns the built-in endpoint for networkID. Networks other
// than development and testnet04 use the mainnet indexer.
func DefaultEndpoint(networkID string) string {
	switch networkID {
	case "development":
		return DevelopmentEndpoint
	case "testnet04":
		return TestnetEndpoint
	default:
		return MainnetEndpoint
	}
}

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type response struct {
	Data struct {
		Events *struct {
			TotalCount int `json:"totalCount"`
			Edges      []struct {
				Cursor string `json:"cursor"`
				Node   *struct {
					ChainID    string `json:"chainId"`
					Parameters string `json:"parameters"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"events"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// FetchPage implements passkeywallet.PageFetcher.
func (c *Client) FetchPage(ctx context.Context, req passkeywallet.PageRequest) (*passkeywallet.Page, error) {
	vars := map[string]any{
		"qualifiedName": req.EventName,
		"filter":        req.Filter,
		"first":         req.First,
	}
	if req.After != "" {
		vars["after"] = req.After
	}

	var resp response
	endpoint := c.Endpoint(req.NetworkID)
	if err := c.http.PostJSON(ctx, endpoint, request{Query: eventsQuery, Variables: vars}, &resp); err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", endpoint, err)
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("graphql errors: %s", strings.Join(msgs, "; "))
	}

	page := &passkeywallet.Page{}
	if resp.Data.Events == nil {
		return page, nil
	}
	page.TotalCount = resp.Data.Events.TotalCount
	for _, e := range resp.Data.Events.Edges {
		edge := passkeywallet.Edge{Cursor: e.Cursor}
		if e.Node != nil {
			edge.ChainID = e.Node.ChainID
			edge.Parameters = e.Node.Parameters
		}
		page.Edges = append(page.Edges, edge)
	}
	c.logger.Debug("graphql page", "endpoint", endpoint, "total_count", page.TotalCount, "edges", len(page.Edges))
	return page, nil
}
