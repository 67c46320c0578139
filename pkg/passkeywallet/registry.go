package passkeywallet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

const (
	// DefaultPageSize is the number of registry events requested per page.
	DefaultPageSize = 200

	// DefaultRegisterEvent is the qualified name of the credential registration event.
	DefaultRegisterEvent = "kadena.spirekey.REGISTER_CREDENTIAL"
)

// PageRequest asks for one page of registration events.
type PageRequest struct {
	NetworkID string
	EventName string
	// Parameter filter as a JSON document, e.g. {"array_contains":["cid","domain"]}.
	// The remote side treats it as a superset match.
	Filter string
	First  int
	After  string // cursor of the last edge of the previous page
}

// Edge is one registration event as returned by the remote query.
type Edge struct {
	Cursor     string
	ChainID    string
	Parameters string // JSON array [credentialId, publicKey, domain]
}

// Page is a single page of registration events.
type Page struct {
	TotalCount int
	Edges      []Edge
}

// PageFetcher fetches pages of registration events.
type PageFetcher interface {
	FetchPage(ctx context.Context, req PageRequest) (*Page, error)
}

// RegistryClient looks up the public keys registered for a credential.
type RegistryClient struct {
	fetcher   PageFetcher
	pageSize  int
	eventName string
	observer  Observer
	logger    *slog.Logger
}

// NewRegistryClient creates a registry client over fetcher with default settings.
func NewRegistryClient(fetcher PageFetcher) *RegistryClient {
	return &RegistryClient{
		fetcher:   fetcher,
		pageSize:  DefaultPageSize,
		eventName: DefaultRegisterEvent,
		observer:  NopObserver{},
		logger:    discardLogger(),
	}
}

// WithPageSize sets the page size.
func (r *RegistryClient) WithPageSize(n int) *RegistryClient {
	if n > 0 {
		r.pageSize = n
	}
	return r
}

// WithEventName sets the registration event name.
func (r *RegistryClient) WithEventName(name string) *RegistryClient {
	if name != "" {
		r.eventName = name
	}
	return r
}

// WithObserver sets the event observer.
func (r *RegistryClient) WithObserver(o Observer) *RegistryClient {
	if o != nil {
		r.observer = o
	}
	return r
}

// WithLogger sets the logger.
func (r *RegistryClient) WithLogger(l *slog.Logger) *RegistryClient {
	if l != nil {
		r.logger = l
	}
	return r
}

// Lookup returns the entries registered for the exact (credentialID, domain)
// pair on networkID.
//
// Pages are requested in cursor order. The first page holding at least one
// exact match ends the lookup and later pages are never requested, so a
// re-registration that only appears on a later page is not seen. An empty
// page or a page without a cursor ends the lookup with ErrNoCredentialsFound.
func (r *RegistryClient) Lookup(ctx context.Context, networkID, credentialID, domain string) ([]RegistryEntry, error) {
	filter, err := json.Marshal(map[string][]string{"array_contains": {credentialID, domain}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode filter: %w", err)
	}

	req := PageRequest{
		NetworkID: networkID,
		EventName: r.eventName,
		Filter:    string(filter),
		First:     r.pageSize,
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.logger.Debug("requesting registry page", "network", networkID, "filter", req.Filter, "after", req.After)
		page, err := r.fetcher.FetchPage(ctx, req)
		if err != nil {
			return nil, TransportError("query registry", err)
		}
		if page == nil {
			page = &Page{}
		}
		r.observer.PageFetched(networkID, len(page.Edges))
		r.logger.Debug("registry page received", "total_count", page.TotalCount, "edges", len(page.Edges))

		if matches := matchEntries(page.Edges, credentialID, domain); len(matches) > 0 {
			return matches, nil
		}
		if len(page.Edges) == 0 {
			break
		}
		next := page.Edges[len(page.Edges)-1].Cursor
		if next == "" || next == req.After {
			break
		}
		req.After = next
	}
	return nil, NewOpError("query registry", ErrNoCredentialsFound)
}

// PublicKeys is Lookup reduced to the registered public keys.
func (r *RegistryClient) PublicKeys(ctx context.Context, networkID, credentialID, domain string) ([]string, error) {
	entries, err := r.Lookup(ctx, networkID, credentialID, domain)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.PublicKey)
	}
	return keys, nil
}

func matchEntries(edges []Edge, credentialID, domain string) []RegistryEntry {
	var out []RegistryEntry
	for _, edge := range edges {
		entry, ok := parseEntry(edge)
		if !ok {
			continue
		}
		if entry.CredentialID == credentialID && entry.Domain == domain {
			out = append(out, entry)
		}
	}
	return out
}

// parseEntry decodes an event's parameters. Malformed parameters are dropped.
func parseEntry(edge Edge) (RegistryEntry, bool) {
	var params []json.RawMessage
	if err := json.Unmarshal([]byte(edge.Parameters), &params); err != nil || len(params) < 3 {
		return RegistryEntry{}, false
	}
	var fields [3]string
	for i := range fields {
		if err := json.Unmarshal(params[i], &fields[i]); err != nil {
			return RegistryEntry{}, false
		}
	}
	if fields[0] == "" || fields[1] == "" {
		return RegistryEntry{}, false
	}
	return RegistryEntry{
		CredentialID: fields[0],
		PublicKey:    fields[1],
		Domain:       fields[2],
		ChainID:      edge.ChainID,
	}, true
}
