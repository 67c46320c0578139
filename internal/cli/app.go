package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/mahdiidarabi/passkey-wallet/internal/config"
	"github.com/mahdiidarabi/passkey-wallet/internal/graphql"
	"github.com/mahdiidarabi/passkey-wallet/internal/logging"
	"github.com/mahdiidarabi/passkey-wallet/internal/metrics"
	"github.com/mahdiidarabi/passkey-wallet/internal/pact"
	"github.com/mahdiidarabi/passkey-wallet/internal/store"
	"github.com/mahdiidarabi/passkey-wallet/pkg/passkeywallet"
)

// app holds the collaborators one command invocation needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    store.Store
	registry *prometheus.Registry
	chain    *pact.Client
	client   *passkeywallet.Client
	printer  *Printer
	errOut   io.Writer
}

func newApp(cmd *cobra.Command, g *globalFlags) (*app, error) {
	cfg, err := config.Load(g.configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	recoverer, ok := passkeywallet.RecovererFor(cfg.Curve)
	if !ok {
		return nil, fmt.Errorf("unknown curve %q", cfg.Curve)
	}
	st, err := store.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		printer: NewPrinter(g.output, cmd.OutOrStdout()),
		errOut:  cmd.ErrOrStderr(),
	}

	var observer passkeywallet.Observer = passkeywallet.NopObserver{}
	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		observer = metrics.NewRecorder(a.registry)
	}

	fetcher := graphql.New(graphql.Config{
		Endpoints: cfg.GraphQL.Endpoints,
		APIKey:    cfg.GraphQL.APIKey,
		RetryMax:  cfg.GraphQL.RetryMax,
		Timeout:   cfg.GraphQL.Timeout,
		Logger:    logger,
	})
	a.chain = pact.New(pact.Config{
		Endpoints:    cfg.Chainweb.Endpoints,
		RetryMax:     cfg.Chainweb.RetryMax,
		Timeout:      cfg.Chainweb.Timeout,
		PollInterval: cfg.Chainweb.PollInterval,
		Logger:       logger,
	})

	a.client = passkeywallet.NewClient().
		WithRecoverer(recoverer).
		WithPageFetcher(fetcher).
		WithChainClient(a.chain).
		WithBindingStore(st).
		WithObserver(observer).
		WithLogger(logger).
		WithRelyingPartyID(cfg.RelyingPartyID).
		WithCeremonyTimeout(cfg.CeremonyTimeout).
		WithRegistry(cfg.Registry.PageSize, cfg.Registry.EventName).
		WithMatcherConfig(passkeywallet.MatcherConfig{NumWorkers: cfg.Matcher.Workers})
	return a, nil
}

// Close closes the store and prints the gathered metrics when enabled.
func (a *app) Close() error {
	var errs []error
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if a.registry != nil {
		if err := writeMetrics(a.errOut, a.registry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
	}
	return nil
}

// withApp runs fn with an app built for cmd and closes it afterwards.
func withApp(g *globalFlags, fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, g)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := a.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		return fn(cmd, a, args)
	}
}
