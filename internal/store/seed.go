package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"table-service/internal/models"
)

// ProductWriter accepts catalog products
type ProductWriter interface {
	UpsertProduct(ctx context.Context, p *models.Product) error
}

// SeedProducts loads a JSON array of products into the catalog
func SeedProducts(ctx context.Context, w ProductWriter, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read catalog seed: %w", err)
	}

	var products []*models.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return 0, fmt.Errorf("failed to parse catalog seed: %w", err)
	}

	for _, p := range products {
		if p.ID == "" {
			return 0, fmt.Errorf("catalog seed contains a product without id")
		}
		if err := w.UpsertProduct(ctx, p); err != nil {
			return 0, fmt.Errorf("failed to store product %s: %w", p.ID, err)
		}
	}
	return len(products), nil
}
