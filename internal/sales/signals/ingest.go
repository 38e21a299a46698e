// Package signals polls ATS job boards and turns matching postings into CRM
// job signals.
package signals

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bizportal/portal/internal/sales"
)

// Store is the persistence the ingestor needs.
type Store interface {
	CompaniesWithATS(ctx context.Context, companyID *int64) ([]sales.Company, error)
	UpsertSignal(ctx context.Context, s sales.JobSignal) (bool, error)
}

// Recorder counts processed postings by source and outcome.
type Recorder interface {
	AddSignals(source, outcome string, count int)
}

// Result summarises one poll.
type Result struct {
	Companies int      `json:"companies"`
	Fetched   int      `json:"fetched"`
	Skipped   int      `json:"skipped"`
	Created   int      `json:"created"`
	Updated   int      `json:"updated"`
	Failed    []string `json:"failed,omitempty"`
}

// Ingestor fans out over companies with bounded concurrency.
type Ingestor struct {
	store       Store
	sources     map[string]Source
	scorer      Scorer
	recorder    Recorder
	logger      *slog.Logger
	concurrency int
	timeout     time.Duration
}

// Options tune an Ingestor.
type Options struct {
	Concurrency int
	Timeout     time.Duration
	Recorder    Recorder
}

// NewIngestor builds an Ingestor over the given sources.
func NewIngestor(store Store, scorer Scorer, logger *slog.Logger, opts Options, sources ...Source) *Ingestor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	bySource := make(map[string]Source, len(sources))
	for _, s := range sources {
		bySource[s.Name()] = s
	}
	return &Ingestor{
		store:       store,
		sources:     bySource,
		scorer:      scorer,
		recorder:    opts.Recorder,
		logger:      logger,
		concurrency: opts.Concurrency,
		timeout:     opts.Timeout,
	}
}

// Run polls every company with an ATS board, or only companyID when set.
// A failing board is logged and reported in Result.Failed without aborting
// the others.
func (in *Ingestor) Run(ctx context.Context, companyID *int64) (Result, error) {
	companies, err := in.store.CompaniesWithATS(ctx, companyID)
	if err != nil {
		return Result{}, fmt.Errorf("load companies: %w", err)
	}

	var (
		mu  sync.Mutex
		res = Result{Companies: len(companies)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.concurrency)
	for _, company := range companies {
		company := company
		g.Go(func() error {
			one, err := in.pollCompany(gctx, company)
			mu.Lock()
			defer mu.Unlock()
			res.Fetched += one.Fetched
			res.Skipped += one.Skipped
			res.Created += one.Created
			res.Updated += one.Updated
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				in.logger.Warn("signal poll failed",
					slog.Int64("company_id", company.ID),
					slog.String("provider", company.ATSProvider),
					slog.String("slug", company.ATSSlug),
					slog.Any("error", err))
				res.Failed = append(res.Failed, company.Name)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	in.logger.Info("signal poll finished",
		slog.Int("companies", res.Companies),
		slog.Int("created", res.Created),
		slog.Int("updated", res.Updated),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", len(res.Failed)))
	return res, nil
}

func (in *Ingestor) pollCompany(ctx context.Context, company sales.Company) (Result, error) {
	var res Result
	src, ok := in.sources[company.ATSProvider]
	if !ok {
		return res, fmt.Errorf("unknown ats provider %q", company.ATSProvider)
	}
	cctx, cancel := context.WithTimeout(ctx, in.timeout)
	defer cancel()

	postings, err := src.Fetch(cctx, company.ATSSlug)
	if err != nil {
		in.record(src.Name(), "error", 1)
		return res, err
	}
	res.Fetched = len(postings)
	for _, p := range postings {
		score, tags := in.scorer.Score(p)
		if score < in.scorer.MinScore() {
			res.Skipped++
			continue
		}
		created, err := in.store.UpsertSignal(cctx, sales.JobSignal{
			CompanyID:  company.ID,
			Source:     sales.SignalSource(src.Name()),
			ExternalID: p.ExternalID,
			Title:      p.Title,
			Location:   p.Location,
			URL:        p.URL,
			Score:      score,
			Tags:       tags,
			PostedAt:   p.PostedAt,
		})
		if err != nil {
			return res, fmt.Errorf("upsert %s: %w", p.ExternalID, err)
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}
	in.record(src.Name(), "created", res.Created)
	in.record(src.Name(), "updated", res.Updated)
	in.record(src.Name(), "skipped", res.Skipped)
	return res, nil
}

func (in *Ingestor) record(source, outcome string, n int) {
	if in.recorder != nil && n > 0 {
		in.recorder.AddSignals(source, outcome, n)
	}
}
