package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/neexbeast/campusnav/internal/campus"
)

const defaultFetchTimeout = 10 * time.Second

// lister is the interface satisfied by Repository.
type lister interface {
	List(ctx context.Context, kind campus.Kind) ([]*campus.POI, error)
}

// Fetcher is the read-only document-store collaborator: fetch-all per kind,
// with failures reported as campus.ErrNetwork.
type Fetcher struct {
	repo    lister
	timeout time.Duration
	log     *slog.Logger
}

// NewFetcher constructs a Fetcher over repo.
func NewFetcher(repo lister, log *slog.Logger) *Fetcher {
	return &Fetcher{repo: repo, timeout: defaultFetchTimeout, log: log}
}

// Fetch returns a fresh snapshot of every POI of kind.
func (f *Fetcher) Fetch(ctx context.Context, kind campus.Kind) ([]*campus.POI, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	pois, err := f.repo.List(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w: %w", kind, campus.ErrNetwork, err)
	}
	return pois, nil
}

// FetchAll fetches every kind in parallel. A failing kind is logged and left
// out; FetchAll itself only fails if a fetch panics.
func (f *Fetcher) FetchAll(ctx context.Context) (map[campus.Kind][]*campus.POI, error) {
	g, gCtx := errgroup.WithContext(ctx)

	results := make([][]*campus.POI, len(campus.Kinds))
	for i, kind := range campus.Kinds {
		i, kind := i, kind
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					f.log.Error("poi fetch panicked", "kind", kind, "recover", r)
					err = fmt.Errorf("%s fetch panicked: %v", kind, r)
				}
			}()
			pois, fetchErr := f.Fetch(gCtx, kind)
			if fetchErr != nil {
				f.log.Warn("poi fetch failed", "kind", kind, "err", fetchErr)
				return nil
			}
			results[i] = pois
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetching campus pois: %w", err)
	}

	out := make(map[campus.Kind][]*campus.POI, len(campus.Kinds))
	for i, kind := range campus.Kinds {
		if results[i] != nil {
			out[kind] = results[i]
		}
	}
	return out, nil
}
