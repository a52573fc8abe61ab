package services

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"

	"finboard/internal/apiclient"
	"finboard/internal/core"
	"finboard/internal/log"
)

const (
	SummaryPath          = "/summary"
	BudgetManagementPath = "/budget-management"
)

// SummaryService reads the backend's server-side aggregations.
type SummaryService struct {
	client Doer
	logger *log.Logger
}

func NewSummaryService(client Doer, logger *log.Logger) *SummaryService {
	if logger == nil {
		logger = log.Discard()
	}
	return &SummaryService{client: client, logger: logger.WithComponent(log.ComponentServices)}
}

// Summary returns the monthly budget stats, category totals and overall totals.
func (s *SummaryService) Summary(ctx context.Context) (core.FinancialSummary, error) {
	var out core.FinancialSummary
	if err := s.get(ctx, SummaryPath, &out, "Failed to fetch financial summary"); err != nil {
		return core.FinancialSummary{}, err
	}
	return out, nil
}

// BudgetUsage returns budget against spending per expense category for the current month.
func (s *SummaryService) BudgetUsage(ctx context.Context) ([]core.BudgetUsage, error) {
	var out []core.BudgetUsage
	if err := s.get(ctx, BudgetManagementPath, &out, "Failed to fetch budget management"); err != nil {
		return nil, err
	}
	if out == nil {
		out = []core.BudgetUsage{}
	}
	return out, nil
}

// Dashboard fetches the summary and the budget usage concurrently.
func (s *SummaryService) Dashboard(ctx context.Context) (core.Dashboard, error) {
	var d core.Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		summary, err := s.Summary(gctx)
		d.Summary = summary
		return err
	})
	g.Go(func() error {
		usage, err := s.BudgetUsage(gctx)
		d.Usage = usage
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Dashboard{}, err
	}
	return d, nil
}

func (s *SummaryService) get(ctx context.Context, path string, out any, fallback string) error {
	resp, err := s.client.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: path})
	if err != nil {
		s.logger.Error("Failed to fetch aggregate", log.FieldPath, path, log.FieldError, err)
		return readFailure(err, apiclient.Envelope{}, fallback)
	}
	if !resp.Envelope.Success {
		return readFailure(nil, resp.Envelope, fallback)
	}
	if !resp.Envelope.HasData() {
		return nil
	}
	if err := resp.Envelope.DecodeData(out); err != nil {
		return readFailure(err, resp.Envelope, fallback)
	}
	return nil
}
