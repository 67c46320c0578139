package passkeywallet

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
)

// Matcher tests recovered candidates against the registered public keys,
// one generation at a time, and stops at the first generation that matches.
type Matcher struct {
	recoverer   Recoverer
	generations []Generation
	config      MatcherConfig
	observer    Observer
	logger      *slog.Logger
}

// NewMatcher creates a matcher that tries generations in the given order.
func NewMatcher(recoverer Recoverer, generations ...Generation) *Matcher {
	return &Matcher{
		recoverer:   recoverer,
		generations: generations,
		config:      DefaultMatcherConfig(),
		observer:    NopObserver{},
		logger:      discardLogger(),
	}
}

// WithConfig sets the matcher configuration.
func (m *Matcher) WithConfig(config MatcherConfig) *Matcher {
	m.config = config
	return m
}

// WithObserver sets the event observer.
func (m *Matcher) WithObserver(o Observer) *Matcher {
	if o != nil {
		m.observer = o
	}
	return m
}

// WithLogger sets the logger.
func (m *Matcher) WithLogger(l *slog.Logger) *Matcher {
	if l != nil {
		m.logger = l
	}
	return m
}

// Generations returns the generations in the order they are tried.
func (m *Matcher) Generations() []Generation {
	return m.generations
}

// RecoveryIDs returns the union of identifiers used by all generations, sorted.
func (m *Matcher) RecoveryIDs() []int {
	var ids []int
	for _, g := range m.generations {
		for _, id := range g.RecoveryIDs() {
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}
	slices.Sort(ids)
	return ids
}

// Candidates recovers every candidate any generation may need.
func (m *Matcher) Candidates(hash []byte, sig SignatureScalars) []RecoveryCandidate {
	return m.recoverer.Recover(hash, sig, m.RecoveryIDs())
}

// MatchRequest is the input of one matching run.
type MatchRequest struct {
	NetworkID    string
	CredentialID string
	Candidates   []RecoveryCandidate
	Registered   []string // public keys from the registry

	// OnGeneration, when set, is called before each generation starts.
	OnGeneration func(Generation)
}

// Match runs each generation to completion before starting the next one.
// Within a generation all candidates are derived concurrently and, if more
// than one matches, the lowest recovery identifier wins. The matching
// generation's Bind is called exactly once. Registered keys are compared
// exactly. A generation without a match is reported to the observer with
// ErrNoRecoverablePublicKey.
//
// Returns ErrNoRecoverablePublicKey when no generation matches.
func (m *Matcher) Match(ctx context.Context, req MatchRequest) (*KeyMaterial, error) {
	registered := make(map[string]struct{}, len(req.Registered))
	for _, pk := range req.Registered {
		registered[pk] = struct{}{}
	}

	for _, gen := range m.generations {
		if req.OnGeneration != nil {
			req.OnGeneration(gen)
		}
		start := time.Now()
		key, err := m.runGeneration(ctx, gen, req.Candidates, registered)
		if err != nil {
			m.observer.RecoveryFinished(gen.Name(), err, time.Since(start))
			return nil, err
		}
		if key == nil {
			m.observer.RecoveryFinished(gen.Name(), ErrNoRecoverablePublicKey, time.Since(start))
			m.logger.Debug("generation found no match", "generation", gen.Name())
			continue
		}

		binding := WalletBinding{NetworkID: req.NetworkID, CredentialID: req.CredentialID}
		if err := gen.Bind(ctx, binding); err != nil {
			err = fmt.Errorf("failed to bind wallet: %w", err)
			m.observer.RecoveryFinished(gen.Name(), err, time.Since(start))
			return nil, err
		}
		m.observer.RecoveryFinished(gen.Name(), nil, time.Since(start))
		m.logger.Info("recovered public key",
			"generation", gen.Name(), "recovery_id", key.RecoveryID, "public_key", key.PublicKey)
		return key, nil
	}
	return nil, NewOpError("match", ErrNoRecoverablePublicKey)
}

// MatchSignature recovers candidates from hash and sig, then runs Match.
func (m *Matcher) MatchSignature(ctx context.Context, hash []byte, sig SignatureScalars, req MatchRequest) (*KeyMaterial, error) {
	req.Candidates = m.Candidates(hash, sig)
	return m.Match(ctx, req)
}

func (m *Matcher) runGeneration(ctx context.Context, gen Generation, all []RecoveryCandidate, registered map[string]struct{}) (*KeyMaterial, error) {
	var candidates []RecoveryCandidate
	for _, id := range gen.RecoveryIDs() {
		for _, c := range all {
			if c.RecoveryID == id && c.Valid() {
				candidates = append(candidates, c)
				break
			}
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	results := make([]*KeyMaterial, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	if m.config.NumWorkers > 0 {
		g.SetLimit(m.config.NumWorkers)
	}
	for i, c := range candidates {
		g.Go(func() error {
			key, err := gen.Derive(gctx, c)
			if err != nil {
				return fmt.Errorf("%s candidate %d: %w", gen.Name(), c.RecoveryID, err)
			}
			_, ok := registered[key.PublicKey]
			m.observer.CandidateTried(gen.Name(), c.RecoveryID, ok)
			if ok {
				results[i] = key
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var best *KeyMaterial
	for _, key := range results {
		if key != nil && (best == nil || key.RecoveryID < best.RecoveryID) {
			best = key
		}
	}
	return best, nil
}
