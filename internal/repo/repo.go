package repo

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"writline/internal/cache"
	"writline/internal/domain"
	"writline/internal/records"
)

// Service is the remote case-record API. *records.Client implements it.
type Service interface {
	ListFIRs(ctx context.Context) ([]domain.FIR, error)
	GetFIR(ctx context.Context, id string) (domain.FIR, error)
	CreateFIR(ctx context.Context, fir domain.FIR) (domain.FIR, error)
	UpdateFIR(ctx context.Context, id string, fir domain.FIR) (domain.FIR, error)
	ListProceedings(ctx context.Context) ([]domain.Proceeding, error)
	ProceedingsByFIR(ctx context.Context, firID string) ([]domain.Proceeding, error)
	DraftProceeding(ctx context.Context, firID string) (*domain.Proceeding, error)
	ListBranches(ctx context.Context) ([]domain.Branch, error)
	CreateProceeding(ctx context.Context, w records.ProceedingWrite) (domain.Proceeding, error)
	UpdateProceeding(ctx context.Context, id string, w records.ProceedingWrite) (domain.Proceeding, error)
}

// Repo reads through the cache and invalidates it on every write. Values it
// returns may be shared with the cache and must be treated as read-only.
type Repo struct {
	Service Service
	Cache   *cache.Store
	Log     *zap.SugaredLogger
}

func New(svc Service, store *cache.Store, log *zap.SugaredLogger) Repo {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if store == nil {
		store = cache.New(cache.DefaultTTL, log)
	}
	return Repo{Service: svc, Cache: store, Log: log}
}

func readThrough[T any](r Repo, key string, fetch func() (T, error)) (T, error) {
	if v, ok := cache.Lookup[T](r.Cache, key); ok {
		return v, nil
	}
	v, err := fetch()
	if err != nil {
		var zero T
		return zero, err
	}
	r.Cache.Set(key, v)
	return v, nil
}

func (r Repo) FIRs(ctx context.Context) ([]domain.FIR, error) {
	return readThrough(r, cache.KeyCases, func() ([]domain.FIR, error) { return r.Service.ListFIRs(ctx) })
}

func (r Repo) FIR(ctx context.Context, id string) (domain.FIR, error) {
	return readThrough(r, cache.CaseKey(id), func() (domain.FIR, error) { return r.Service.GetFIR(ctx, id) })
}

func (r Repo) Proceedings(ctx context.Context) ([]domain.Proceeding, error) {
	return readThrough(r, cache.KeyProceedings, func() ([]domain.Proceeding, error) { return r.Service.ListProceedings(ctx) })
}

func (r Repo) ProceedingsByFIR(ctx context.Context, firID string) ([]domain.Proceeding, error) {
	return readThrough(r, cache.ProceedingsKey(firID), func() ([]domain.Proceeding, error) {
		return r.Service.ProceedingsByFIR(ctx, firID)
	})
}

// DraftProceeding returns the case's draft, or nil when there is none.
func (r Repo) DraftProceeding(ctx context.Context, firID string) (*domain.Proceeding, error) {
	return readThrough(r, cache.DraftKey(firID), func() (*domain.Proceeding, error) {
		return r.Service.DraftProceeding(ctx, firID)
	})
}

func (r Repo) Branches(ctx context.Context) ([]domain.Branch, error) {
	return readThrough(r, cache.KeyBranches, func() ([]domain.Branch, error) { return r.Service.ListBranches(ctx) })
}

func (r Repo) CreateFIR(ctx context.Context, fir domain.FIR) (domain.FIR, error) {
	out, err := r.Service.CreateFIR(ctx, fir)
	if err != nil {
		return out, fmt.Errorf("create case: %w", err)
	}
	r.invalidateCase(out.ID)
	return out, nil
}

func (r Repo) UpdateFIR(ctx context.Context, id string, fir domain.FIR) (domain.FIR, error) {
	out, err := r.Service.UpdateFIR(ctx, id, fir)
	if err != nil {
		return out, fmt.Errorf("update case %s: %w", id, err)
	}
	r.invalidateCase(id)
	return out, nil
}

func (r Repo) CreateProceeding(ctx context.Context, w records.ProceedingWrite) (domain.Proceeding, error) {
	out, err := r.Service.CreateProceeding(ctx, w)
	if err != nil {
		return out, fmt.Errorf("create proceeding: %w", err)
	}
	r.invalidateProceedings(w.FIR, w.Decision != nil)
	return out, nil
}

func (r Repo) UpdateProceeding(ctx context.Context, id string, w records.ProceedingWrite) (domain.Proceeding, error) {
	out, err := r.Service.UpdateProceeding(ctx, id, w)
	if err != nil {
		return out, fmt.Errorf("update proceeding %s: %w", id, err)
	}
	r.invalidateProceedings(w.FIR, w.Decision != nil)
	return out, nil
}

// invalidateCase runs after any case write, whether or not cached fields changed.
func (r Repo) invalidateCase(firID string) {
	r.Cache.Invalidate(cache.KeyCases, cache.CaseKey(firID), cache.KeyDashboard)
}

// invalidateProceedings runs after any proceeding write. Decision details make
// the server re-derive the case status, so the case entries go too.
func (r Repo) invalidateProceedings(firID string, decided bool) {
	keys := []string{cache.KeyProceedings, cache.ProceedingsKey(firID), cache.DraftKey(firID), cache.KeyDashboard}
	if decided {
		keys = append(keys, cache.KeyCases, cache.CaseKey(firID))
	}
	r.Cache.Invalidate(keys...)
}

// Logout drops every cached result.
func (r Repo) Logout() {
	r.Cache.InvalidateAll()
}
