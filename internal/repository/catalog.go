package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mweber/stocklens/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogRepository records completed datasets so collections remain
// discoverable across process restarts.
type CatalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// Record creates or replaces the catalog entry for a dataset.
func (r *CatalogRepository) Record(ctx context.Context, ds *domain.Dataset) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		UpdateAll: true,
	}).Create(ds).Error
}

// GetByName retrieves a dataset entry by name.
func (r *CatalogRepository) GetByName(ctx context.Context, name string) (*domain.Dataset, error) {
	var ds domain.Dataset
	if err := r.db.WithContext(ctx).First(&ds, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("dataset %s: %w", name, domain.ErrNotFound)
		}
		return nil, err
	}
	return &ds, nil
}

// LatestForSymbol returns the most recently created dataset for a stock
// symbol, or domain.ErrNotFound when the symbol was never ingested.
func (r *CatalogRepository) LatestForSymbol(ctx context.Context, symbol string) (*domain.Dataset, error) {
	var ds domain.Dataset
	err := r.db.WithContext(ctx).
		Where("symbol = ?", strings.ToUpper(strings.TrimSpace(symbol))).
		Order("created_at DESC").
		First(&ds).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("symbol %s: %w", symbol, domain.ErrNotFound)
		}
		return nil, err
	}
	return &ds, nil
}

// List returns all catalog entries, newest first.
func (r *CatalogRepository) List(ctx context.Context) ([]domain.Dataset, error) {
	var datasets []domain.Dataset
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&datasets).Error; err != nil {
		return nil, err
	}
	return datasets, nil
}

// Delete removes a catalog entry.
func (r *CatalogRepository) Delete(ctx context.Context, name string) error {
	return r.db.WithContext(ctx).Delete(&domain.Dataset{}, "name = ?", name).Error
}
