package repo

import (
	"context"

	"writline/internal/cache"
	"writline/internal/domain"
)

type Completion string

const (
	CompletionUnknown  Completion = "unknown"
	CompletionNew      Completion = "no_proceedings"
	CompletionDraft    Completion = "draft"
	CompletionComplete Completion = "complete"
)

// Completion classifies a case for list badges. Failures are logged and
// reported as CompletionUnknown; they never reach the caller.
func (r Repo) Completion(ctx context.Context, firID string) Completion {
	ps, err := r.ProceedingsByFIR(ctx, firID)
	if err != nil {
		r.Log.Warnw("completion check failed", "fir", firID, "error", err)
		return CompletionUnknown
	}
	return completionOf(ps)
}

func completionOf(ps []domain.Proceeding) Completion {
	if len(ps) == 0 {
		return CompletionNew
	}
	for _, p := range ps {
		if !p.Draft {
			return CompletionComplete
		}
	}
	return CompletionDraft
}

// Dashboard aggregates the case and proceeding lists.
func (r Repo) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	return readThrough(r, cache.KeyDashboard, func() (domain.Dashboard, error) {
		firs, err := r.FIRs(ctx)
		if err != nil {
			return domain.Dashboard{}, err
		}
		ps, err := r.Proceedings(ctx)
		if err != nil {
			return domain.Dashboard{}, err
		}
		return aggregate(firs, ps), nil
	})
}

func aggregate(firs []domain.FIR, ps []domain.Proceeding) domain.Dashboard {
	d := domain.Dashboard{
		TotalCases:       len(firs),
		ByWritType:       map[domain.WritType]int{},
		ByStatus:         map[string]int{},
		TotalProceedings: len(ps),
	}
	byFIR := map[string][]domain.Proceeding{}
	for _, p := range ps {
		byFIR[p.FIR] = append(byFIR[p.FIR], p)
	}
	for _, f := range firs {
		d.ByWritType[f.WritType]++
		status := f.Status
		if status == "" {
			status = "PENDING"
		}
		d.ByStatus[status]++
		switch completionOf(byFIR[f.ID]) {
		case CompletionNew:
			d.WithoutProceeding++
		case CompletionDraft:
			d.PendingDrafts++
		}
	}
	return d
}
