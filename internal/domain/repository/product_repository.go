package repository

import (
	"context"

	"artisora/internal/domain/entity"
)

type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Product, error)
	ListByArtisanID(ctx context.Context, artisanID string, limit int) ([]*entity.Product, error)
}
