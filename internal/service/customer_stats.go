package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"table-service/internal/models"
	"table-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MaxPreferredProducts bounds the preferred product list of a profile
const MaxPreferredProducts = 10

const maxProfileAttempts = 5

// CustomerStats keeps visit, spend and preferred product aggregates. Updates
// of one customer are serialized in process; writes from other instances are
// detected by the store's version check and retried.
type CustomerStats struct {
	profiles ProfileStore
	locks    *KeyedLocks[string]
	timeout  time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewCustomerStats creates a statistics updater bound to a profile store
func NewCustomerStats(profiles ProfileStore, timeout time.Duration) *CustomerStats {
	return &CustomerStats{
		profiles: profiles,
		locks:    NewKeyedLocks[string](),
		timeout:  timeout,
		now:      time.Now,
		logger:   util.ComponentLogger("customer-stats"),
	}
}

// RecordConfirmedOrder folds a confirmed order into its customer's profile.
// Panics from the store are converted into errors.
func (cs *CustomerStats) RecordConfirmedOrder(ctx context.Context, order *models.Order) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("customer stats panic: %v", r)
		}
	}()

	if order.CustomerID == nil {
		return nil
	}
	customerID := *order.CustomerID

	if cs.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cs.timeout)
		defer cancel()
	}

	unlock := cs.locks.Lock(customerID)
	defer unlock()

	var profile *models.CustomerProfile
	for attempt := 1; ; attempt++ {
		profile, err = cs.updateProfile(ctx, customerID, order)
		if !errors.Is(err, models.ErrVersionConflict) || attempt == maxProfileAttempts {
			break
		}
		cs.logger.Debug("Customer profile changed concurrently, retrying",
			zap.String("customer_id", customerID),
			zap.Int("attempt", attempt))
	}
	if err != nil {
		return err
	}

	cs.logger.Debug("Customer profile updated",
		zap.String("customer_id", customerID),
		zap.Int("visits", profile.Visits))
	return nil
}

func (cs *CustomerStats) updateProfile(ctx context.Context, customerID string, order *models.Order) (*models.CustomerProfile, error) {
	profile, err := cs.profiles.GetProfile(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if profile == nil {
		profile = &models.CustomerProfile{
			CustomerID:    customerID,
			LifetimeSpend: decimal.Zero,
		}
	}

	applyConfirmedOrder(profile, order, cs.now())

	if err := cs.profiles.SaveProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	return profile, nil
}

// applyConfirmedOrder counts each product once per order and keeps the
// preferred list trimmed to the most ordered products.
func applyConfirmedOrder(profile *models.CustomerProfile, order *models.Order, now time.Time) {
	profile.Visits++
	profile.LifetimeSpend = profile.LifetimeSpend.Add(order.Total)
	profile.LastVisitAt = now

	index := make(map[string]int, len(profile.PreferredProducts))
	for i, p := range profile.PreferredProducts {
		index[p.ProductID] = i
	}

	seen := make(map[string]bool, len(order.Items))
	for _, item := range order.Items {
		if seen[item.ProductID] {
			continue
		}
		seen[item.ProductID] = true

		if i, ok := index[item.ProductID]; ok {
			profile.PreferredProducts[i].Count++
			profile.PreferredProducts[i].Name = item.Name
			continue
		}
		index[item.ProductID] = len(profile.PreferredProducts)
		profile.PreferredProducts = append(profile.PreferredProducts, models.ProductCount{
			ProductID: item.ProductID,
			Name:      item.Name,
			Count:     1,
		})
	}

	sort.SliceStable(profile.PreferredProducts, func(i, j int) bool {
		return profile.PreferredProducts[i].Count > profile.PreferredProducts[j].Count
	})
	if len(profile.PreferredProducts) > MaxPreferredProducts {
		profile.PreferredProducts = profile.PreferredProducts[:MaxPreferredProducts]
	}
}
