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

// RefreshTokenRepository implements domain.RefreshTokenRepository. Documents
// are keyed by the token hash; expired ones are removed by a TTL index.
type RefreshTokenRepository struct {
	collection *mongo.Collection
}

// NewRefreshTokenRepository creates a new RefreshTokenRepository.
// It also ensures that necessary indexes are created on the collection.
func NewRefreshTokenRepository(ctx context.Context, db *mongo.Database) (*RefreshTokenRepository, error) {
	repo := &RefreshTokenRepository{
		collection: db.Collection(RefreshTokensCollection),
	}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "revoked", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0), // TTL index for automatic cleanup
		},
	}

	if _, err := repo.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		log.Warn().Err(err).Msg("Issue creating indexes for refresh_tokens collection (might already exist or other error)")
	} else {
		log.Info().Msg("Indexes for refresh_tokens collection ensured.")
	}

	return repo, nil
}

// Store inserts a new refresh token record.
func (r *RefreshTokenRepository) Store(ctx context.Context, token *domain.RefreshToken) error {
	if token.ID == "" {
		token.ID = newDocumentID()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	if _, err := r.collection.InsertOne(ctx, token); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicate
		}
		log.Error().Err(err).Str("account_id", token.AccountID).Msg("Error storing refresh token in MongoDB")
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// ConsumeActive revokes a usable token with a single conditional update and
// returns its pre-image. Of concurrent callers at most one matches.
func (r *RefreshTokenRepository) ConsumeActive(ctx context.Context, tokenHash string, now time.Time) (*domain.RefreshToken, error) {
	filter := bson.M{
		"token_hash": tokenHash,
		"revoked":    false,
		"expires_at": bson.M{"$gt": now},
	}
	update := bson.M{"$set": bson.M{"revoked": true, "revoked_at": now}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var token domain.RefreshToken
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&token); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		log.Error().Err(err).Msg("Error consuming refresh token in MongoDB")
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	return &token, nil
}

// RevokeForAccount revokes the token only when accountID owns it.
func (r *RefreshTokenRepository) RevokeForAccount(ctx context.Context, tokenHash, accountID string, now time.Time) (bool, error) {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"token_hash": tokenHash, "account_id": accountID, "revoked": false},
		bson.M{"$set": bson.M{"revoked": true, "revoked_at": now}},
	)
	if err != nil {
		log.Error().Err(err).Str("account_id", accountID).Msg("Error revoking refresh token in MongoDB")
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return result.ModifiedCount == 1, nil
}

// RevokeAllForAccount revokes every non-revoked token of the account.
func (r *RefreshTokenRepository) RevokeAllForAccount(ctx context.Context, accountID string, now time.Time) (int64, error) {
	result, err := r.collection.UpdateMany(ctx,
		bson.M{"account_id": accountID, "revoked": false},
		bson.M{"$set": bson.M{"revoked": true, "revoked_at": now}},
	)
	if err != nil {
		log.Error().Err(err).Str("account_id", accountID).Msg("Error revoking refresh tokens in MongoDB")
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return result.ModifiedCount, nil
}

// CountActive counts the usable tokens of the account.
func (r *RefreshTokenRepository) CountActive(ctx context.Context, accountID string, now time.Time) (int64, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{
		"account_id": accountID,
		"revoked":    false,
		"expires_at": bson.M{"$gt": now},
	})
	if err != nil {
		return 0, fmt.Errorf("count refresh tokens: %w", err)
	}
	return n, nil
}

// DeleteExpired removes expired records ahead of the TTL monitor.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now}})
	if err != nil {
		log.Error().Err(err).Msg("Error deleting expired refresh tokens from MongoDB")
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return result.DeletedCount, nil
}

var _ domain.RefreshTokenRepository = (*RefreshTokenRepository)(nil)
