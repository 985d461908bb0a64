package store

import (
	"context"
	"os"
	"testing"
	"time"

	"table-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileStoreRoundTrip(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("Integration test - requires mongo (set TEST_MONGO_URI)")
	}

	ctx := context.Background()
	profiles, err := NewProfileStore(ctx, uri, "tables_test")
	require.NoError(t, err)
	defer profiles.Close(ctx)

	id := uuid.New().String()
	missing, err := profiles.GetProfile(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, missing)

	visit := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, profiles.SaveProfile(ctx, &models.CustomerProfile{
		CustomerID:        id,
		Visits:            3,
		LifetimeSpend:     decimal.RequireFromString("87.25"),
		PreferredProducts: []models.ProductCount{{ProductID: "burger", Name: "Burger", Count: 3}},
		LastVisitAt:       visit,
	}))

	loaded, err := profiles.GetProfile(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 3, loaded.Visits)
	assert.True(t, decimal.RequireFromString("87.25").Equal(loaded.LifetimeSpend))
	assert.Equal(t, []models.ProductCount{{ProductID: "burger", Name: "Burger", Count: 3}}, loaded.PreferredProducts)
	assert.WithinDuration(t, visit, loaded.LastVisitAt, time.Millisecond)
}

func TestProfileStoreRejectsStaleVersion(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("Integration test - requires mongo (set TEST_MONGO_URI)")
	}

	ctx := context.Background()
	profiles, err := NewProfileStore(ctx, uri, "tables_test")
	require.NoError(t, err)
	defer profiles.Close(ctx)

	id := uuid.New().String()
	first := &models.CustomerProfile{CustomerID: id, Visits: 1, LifetimeSpend: decimal.RequireFromString("10")}
	require.NoError(t, profiles.SaveProfile(ctx, first))
	assert.EqualValues(t, 1, first.Version)

	racing := &models.CustomerProfile{CustomerID: id, Visits: 1, LifetimeSpend: decimal.RequireFromString("5")}
	assert.ErrorIs(t, profiles.SaveProfile(ctx, racing), models.ErrVersionConflict)

	first.Visits = 2
	require.NoError(t, profiles.SaveProfile(ctx, first))

	stale := &models.CustomerProfile{CustomerID: id, Visits: 9, LifetimeSpend: decimal.Zero, Version: 1}
	assert.ErrorIs(t, profiles.SaveProfile(ctx, stale), models.ErrVersionConflict)

	loaded, err := profiles.GetProfile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Visits)
	assert.EqualValues(t, 2, loaded.Version)
}
