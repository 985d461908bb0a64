package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"table-service/internal/models"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const profilesCollection = "customer_profiles"

// ProfileStore keeps customer profiles in MongoDB
type ProfileStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type profileDocument struct {
	CustomerID        string            `bson:"_id"`
	Visits            int               `bson:"visits"`
	LifetimeSpend     string            `bson:"lifetime_spend"`
	PreferredProducts []productCountDoc `bson:"preferred_products"`
	LastVisitAt       time.Time         `bson:"last_visit_at"`
	Version           int64             `bson:"version"`
}

type productCountDoc struct {
	ProductID string `bson:"product_id"`
	Name      string `bson:"name"`
	Count     int    `bson:"count"`
}

// NewProfileStore connects to MongoDB
func NewProfileStore(ctx context.Context, uri, database string) (*ProfileStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return &ProfileStore{
		client:     client,
		collection: client.Database(database).Collection(profilesCollection),
	}, nil
}

// Close disconnects the client
func (p *ProfileStore) Close(ctx context.Context) error {
	return p.client.Disconnect(ctx)
}

// GetProfile retrieves a customer profile
func (p *ProfileStore) GetProfile(ctx context.Context, customerID string) (*models.CustomerProfile, error) {
	var doc profileDocument
	err := p.collection.FindOne(ctx, bson.M{"_id": customerID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	spend, err := decimal.NewFromString(doc.LifetimeSpend)
	if err != nil {
		return nil, fmt.Errorf("invalid lifetime spend for %s: %w", customerID, err)
	}

	profile := &models.CustomerProfile{
		CustomerID:    doc.CustomerID,
		Visits:        doc.Visits,
		LifetimeSpend: spend,
		LastVisitAt:   doc.LastVisitAt,
		Version:       doc.Version,
	}
	for _, pc := range doc.PreferredProducts {
		profile.PreferredProducts = append(profile.PreferredProducts, models.ProductCount{
			ProductID: pc.ProductID,
			Name:      pc.Name,
			Count:     pc.Count,
		})
	}
	return profile, nil
}

// SaveProfile inserts a new profile (version 0) or replaces the stored one
// while its version still equals profile.Version. A lost race returns
// models.ErrVersionConflict.
func (p *ProfileStore) SaveProfile(ctx context.Context, profile *models.CustomerProfile) error {
	doc := profileDocument{
		CustomerID:        profile.CustomerID,
		Visits:            profile.Visits,
		LifetimeSpend:     profile.LifetimeSpend.String(),
		PreferredProducts: make([]productCountDoc, 0, len(profile.PreferredProducts)),
		LastVisitAt:       profile.LastVisitAt,
		Version:           profile.Version + 1,
	}
	for _, pc := range profile.PreferredProducts {
		doc.PreferredProducts = append(doc.PreferredProducts, productCountDoc{
			ProductID: pc.ProductID,
			Name:      pc.Name,
			Count:     pc.Count,
		})
	}

	if profile.Version == 0 {
		_, err := p.collection.InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			return models.ErrVersionConflict
		}
		if err != nil {
			return err
		}
		profile.Version = doc.Version
		return nil
	}

	res, err := p.collection.ReplaceOne(ctx, bson.M{"_id": profile.CustomerID, "version": profile.Version}, doc)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return models.ErrVersionConflict
	}
	profile.Version = doc.Version
	return nil
}
