// Package catalog fetches the pack catalog from the remote issuer and keeps
// the most recent list of active packs.
package catalog

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/ppiankov/tokendesk/internal/model"
	"github.com/ppiankov/tokendesk/internal/remote"
)

// PacksPath is the catalog endpoint.
const PacksPath = "/api/admin/packs"

// Doer is the transport the repository needs.
type Doer interface {
	Do(ctx context.Context, method, path, secret string, body any) ([]byte, error)
}

// Repository fetches active packs and caches the last successful result.
type Repository struct {
	client Doer

	mu   sync.Mutex
	last []model.Pack
}

// NewRepository creates a Repository over the given transport.
func NewRepository(client Doer) *Repository {
	return &Repository{client: client}
}

// FetchActive retrieves the catalog and returns only the active packs. It
// never retries. The cache is replaced, never merged, on success and left
// alone on failure.
func (r *Repository) FetchActive(ctx context.Context, secret string) ([]model.Pack, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, model.Errorf(model.KindValidation, "fetch packs", "admin secret must not be empty")
	}

	raw, err := r.client.Do(ctx, http.MethodGet, PacksPath, secret, nil)
	if err != nil {
		return nil, err
	}

	packs, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	active := FilterActive(packs)

	r.mu.Lock()
	r.last = active
	r.mu.Unlock()

	return clone(active), nil
}

// Last returns a copy of the most recent successful fetch.
func (r *Repository) Last() []model.Pack {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clone(r.last)
}

func clone(packs []model.Pack) []model.Pack {
	out := make([]model.Pack, len(packs))
	copy(out, packs)
	return out
}

var _ Doer = (*remote.Client)(nil)
