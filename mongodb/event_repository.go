package mongodb

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.pilab.hu/fxapi/domain"
)

// EventRepository implements domain.AuditEventRepository.
type EventRepository struct {
	events *mongo.Collection
}

// NewEventRepository creates a new EventRepository. Events expire after
// domain.EventRetention through a TTL index on timestamp.
func NewEventRepository(ctx context.Context, db *mongo.Database) (*EventRepository, error) {
	repo := &EventRepository{events: db.Collection(EventsCollection)}

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "kind", Value: 1}}},
		{
			Keys:    bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(domain.EventRetention.Seconds())),
		},
	}
	if _, err := repo.events.Indexes().CreateMany(ctx, indexModels); err != nil {
		log.Warn().Err(err).Msg("Issue creating indexes for events collection (might already exist or other error)")
	} else {
		log.Info().Msg("Indexes for events collection ensured.")
	}
	return repo, nil
}

// Append inserts an event.
func (r *EventRepository) Append(ctx context.Context, event *domain.AuditEvent) error {
	if event.ID == "" {
		event.ID = newDocumentID()
	}
	if _, err := r.events.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func eventFilter(accountID string, f domain.EventFilter) bson.M {
	filter := bson.M{"account_id": accountID}
	if f.Kind != "" {
		filter["kind"] = f.Kind
	}
	if f.From != nil || f.To != nil {
		ts := bson.M{}
		if f.From != nil {
			ts["$gte"] = *f.From
		}
		if f.To != nil {
			ts["$lte"] = *f.To
		}
		filter["timestamp"] = ts
	}
	return filter
}

// List returns one page of the account's events, newest first.
func (r *EventRepository) List(ctx context.Context, accountID string, filter domain.EventFilter, page domain.Page) ([]*domain.AuditEvent, int64, error) {
	page = page.Normalize()
	query := eventFilter(accountID, filter)

	total, err := r.events.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetSkip(int64(page.Skip())).
		SetLimit(int64(page.Limit))
	cursor, err := r.events.Find(ctx, query, findOptions)
	if err != nil {
		log.Error().Err(err).Str("account_id", accountID).Msg("Error listing events from MongoDB")
		return nil, 0, fmt.Errorf("find events: %w", err)
	}
	defer cursor.Close(ctx)

	events := []*domain.AuditEvent{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, 0, fmt.Errorf("decode events: %w", err)
	}
	return events, total, nil
}

// Stats counts the account's events per kind, most frequent first.
func (r *EventRepository) Stats(ctx context.Context, accountID string) ([]domain.EventStat, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"account_id": accountID}}},
		{{Key: "$group", Value: bson.M{
			"_id":             "$kind",
			"count":           bson.M{"$sum": 1},
			"last_occurrence": bson.M{"$max": "$timestamp"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}

	cursor, err := r.events.Aggregate(ctx, pipeline)
	if err != nil {
		log.Error().Err(err).Str("account_id", accountID).Msg("Error aggregating event stats in MongoDB")
		return nil, fmt.Errorf("aggregate events: %w", err)
	}
	defer cursor.Close(ctx)

	stats := []domain.EventStat{}
	if err := cursor.All(ctx, &stats); err != nil {
		return nil, fmt.Errorf("decode event stats: %w", err)
	}
	return stats, nil
}

var _ domain.AuditEventRepository = (*EventRepository)(nil)
