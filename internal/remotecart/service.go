package remotecart

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/vaccine-orders/internal/cart"
	"github.com/angelmondragon/vaccine-orders/pkg/db"
	"github.com/angelmondragon/vaccine-orders/pkg/db/models"
	pkgerrors "github.com/angelmondragon/vaccine-orders/pkg/errors"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the authoritative server-side cart of a user.
type Service interface {
	Get(ctx context.Context, userID string) ([]cart.Line, error)
	Replace(ctx context.Context, userID string, lines []cart.Line) ([]cart.Line, error)
}

type service struct {
	repo CartRepository
	tx   txRunner
}

func NewService(repo CartRepository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

// Get returns the stored lines; a user without a cart has an empty one.
func (s *service) Get(ctx context.Context, userID string) ([]cart.Line, error) {
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	record, err := s.repo.FindByUser(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []cart.Line{}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	lines, err := toLines(record.Items)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode cart")
	}
	return lines, nil
}

// Replace overwrites the user's cart with lines, creating the cart on first write.
func (s *service) Replace(ctx context.Context, userID string, lines []cart.Line) ([]cart.Line, error) {
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}

	items := make([]models.CartItem, 0, len(lines))
	for i, line := range lines {
		if line.Product.ID.IsZero() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is required").
				WithDetails(map[string]any{"index": i})
		}
		if line.Quantity < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
				WithDetails(map[string]any{"index": i})
		}
		item, err := toItem(line)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode cart item")
		}
		items = append(items, item)
	}

	err := s.replaceItems(ctx, userID, items)
	if db.IsUniqueViolation(err, "") {
		// a concurrent first write created the cart; the retry finds it
		err = s.replaceItems(ctx, userID, items)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replace cart")
	}

	return s.Get(ctx, userID)
}

func (s *service) replaceItems(ctx context.Context, userID string, items []models.CartItem) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := repo.FindByUser(ctx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			record, err = repo.Create(ctx, &models.CartRecord{UserID: userID})
		}
		if err != nil {
			return err
		}
		return repo.ReplaceItems(ctx, record.ID, items)
	})
}
