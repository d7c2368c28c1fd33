// Package chain fans a product batch out to several stores.
package chain

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// Named pairs a store with the label used in errors and logs.
type Named struct {
	Name  string
	Store crawler.ProductStore
}

// Store writes every batch to each member in order. A batch only counts as
// written when every member accepted it; the count reported is the first
// member's.
type Store struct {
	members []Named
	logger  *zap.Logger
}

// New builds a Store. At least one member is required.
func New(logger *zap.Logger, members ...Named) (*Store, error) {
	if len(members) == 0 {
		return nil, errors.New("chain store needs at least one member")
	}
	for _, m := range members {
		if m.Store == nil {
			return nil, fmt.Errorf("chain member %q has no store", m.Name)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{members: members, logger: logger}, nil
}

// UpsertBatch implements crawler.ProductStore. Every member is attempted even
// after a failure so one broken sink does not starve the others.
func (s *Store) UpsertBatch(ctx context.Context, records []crawler.ProductRecord) (int, error) {
	var (
		written int
		errs    []error
	)
	for i, m := range s.members {
		n, err := m.Store.UpsertBatch(ctx, records)
		if err != nil {
			s.logger.Warn("store member rejected batch",
				zap.String("store", m.Name),
				zap.Int("records", len(records)),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", m.Name, err))
			continue
		}
		if i == 0 {
			written = n
		}
	}
	if len(errs) > 0 {
		return 0, errors.Join(errs...)
	}
	return written, nil
}
