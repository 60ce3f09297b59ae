package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.pilab.hu/fxapi/domain"
)

// ConversionRepository implements domain.ConversionRepository.
type ConversionRepository struct {
	conversions *mongo.Collection
}

func NewConversionRepository(ctx context.Context, db *mongo.Database) (*ConversionRepository, error) {
	repo := &ConversionRepository{conversions: db.Collection(ConversionsCollection)}

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "from_currency", Value: 1}, {Key: "to_currency", Value: 1}}},
	}
	if _, err := repo.conversions.Indexes().CreateMany(ctx, indexModels); err != nil {
		log.Warn().Err(err).Msg("Issue creating indexes for conversions collection (might already exist or other error)")
	}
	return repo, nil
}

func (r *ConversionRepository) Create(ctx context.Context, c *domain.Conversion) error {
	if c.ID == "" {
		c.ID = newDocumentID()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	if _, err := r.conversions.InsertOne(ctx, c); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicate
		}
		log.Error().Err(err).Str("account_id", c.AccountID).Msg("Error creating conversion in MongoDB")
		return fmt.Errorf("insert conversion: %w", err)
	}
	return nil
}

func (r *ConversionRepository) FindByID(ctx context.Context, accountID, id string) (*domain.Conversion, error) {
	var c domain.Conversion
	err := r.conversions.FindOne(ctx, bson.M{"_id": id, "account_id": accountID}).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find conversion: %w", err)
	}
	return &c, nil
}

func conversionFilter(accountID string, f domain.ConversionFilter) bson.M {
	filter := bson.M{"account_id": accountID}
	if f.FromCurrency != "" {
		filter["from_currency"] = f.FromCurrency
	}
	if f.ToCurrency != "" {
		filter["to_currency"] = f.ToCurrency
	}
	if f.From != nil || f.To != nil {
		created := bson.M{}
		if f.From != nil {
			created["$gte"] = *f.From
		}
		if f.To != nil {
			created["$lte"] = *f.To
		}
		filter["created_at"] = created
	}
	return filter
}

func (r *ConversionRepository) List(ctx context.Context, accountID string, filter domain.ConversionFilter, page domain.Page) ([]*domain.Conversion, int64, error) {
	page = page.Normalize()
	query := conversionFilter(accountID, filter)

	total, err := r.conversions.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count conversions: %w", err)
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(page.Skip())).
		SetLimit(int64(page.Limit))
	cursor, err := r.conversions.Find(ctx, query, findOptions)
	if err != nil {
		log.Error().Err(err).Str("account_id", accountID).Msg("Error listing conversions from MongoDB")
		return nil, 0, fmt.Errorf("find conversions: %w", err)
	}
	defer cursor.Close(ctx)

	out := []*domain.Conversion{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, 0, fmt.Errorf("decode conversions: %w", err)
	}
	return out, total, nil
}

func (r *ConversionRepository) Delete(ctx context.Context, accountID, id string) error {
	result, err := r.conversions.DeleteOne(ctx, bson.M{"_id": id, "account_id": accountID})
	if err != nil {
		return fmt.Errorf("delete conversion: %w", err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Summary groups the account's conversions by target currency.
func (r *ConversionRepository) Summary(ctx context.Context, accountID string) ([]domain.CurrencySummary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"account_id": accountID}}},
		{{Key: "$group", Value: bson.M{
			"_id":             "$to_currency",
			"total_amount":    bson.M{"$sum": "$converted_amount"},
			"count":           bson.M{"$sum": 1},
			"avg_rate":        bson.M{"$avg": "$rate"},
			"last_conversion": bson.M{"$max": "$created_at"},
		}}},
		{{Key: "$project", Value: bson.M{
			"_id":             0,
			"currency":        "$_id",
			"total_amount":    bson.M{"$round": bson.A{"$total_amount", 2}},
			"count":           1,
			"avg_rate":        bson.M{"$round": bson.A{"$avg_rate", 4}},
			"last_conversion": 1,
		}}},
		{{Key: "$sort", Value: bson.M{"total_amount": -1}}},
	}

	cursor, err := r.conversions.Aggregate(ctx, pipeline)
	if err != nil {
		log.Error().Err(err).Str("account_id", accountID).Msg("Error aggregating conversion summary in MongoDB")
		return nil, fmt.Errorf("aggregate conversion summary: %w", err)
	}
	defer cursor.Close(ctx)

	out := []domain.CurrencySummary{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode conversion summary: %w", err)
	}
	return out, nil
}

// Stats aggregates all of the account's conversions.
func (r *ConversionRepository) Stats(ctx context.Context, accountID string) (*domain.ConversionStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"account_id": accountID}}},
		{{Key: "$group", Value: bson.M{
			"_id":                    nil,
			"total_conversions":      bson.M{"$sum": 1},
			"total_amount_converted": bson.M{"$sum": "$amount"},
			"pairs":                  bson.M{"$addToSet": bson.M{"$concat": bson.A{"$from_currency", "-", "$to_currency"}}},
			"avg_conversion_amount":  bson.M{"$avg": "$amount"},
			"last_conversion":        bson.M{"$max": "$created_at"},
			"first_conversion":       bson.M{"$min": "$created_at"},
		}}},
		{{Key: "$project", Value: bson.M{
			"_id":                    0,
			"total_conversions":      1,
			"total_amount_converted": bson.M{"$round": bson.A{"$total_amount_converted", 2}},
			"unique_currency_pairs":  bson.M{"$size": "$pairs"},
			"avg_conversion_amount":  bson.M{"$round": bson.A{"$avg_conversion_amount", 2}},
			"last_conversion":        1,
			"first_conversion":       1,
		}}},
	}

	cursor, err := r.conversions.Aggregate(ctx, pipeline)
	if err != nil {
		log.Error().Err(err).Str("account_id", accountID).Msg("Error aggregating conversion stats in MongoDB")
		return nil, fmt.Errorf("aggregate conversion stats: %w", err)
	}
	defer cursor.Close(ctx)

	stats := &domain.ConversionStats{}
	if cursor.Next(ctx) {
		if err := cursor.Decode(stats); err != nil {
			return nil, fmt.Errorf("decode conversion stats: %w", err)
		}
	}
	return stats, cursor.Err()
}

// Recent returns the account's latest conversions.
func (r *ConversionRepository) Recent(ctx context.Context, accountID string, limit int) ([]*domain.Conversion, error) {
	items, _, err := r.List(ctx, accountID, domain.ConversionFilter{}, domain.Page{Page: 1, Limit: limit})
	return items, err
}

var _ domain.ConversionRepository = (*ConversionRepository)(nil)
