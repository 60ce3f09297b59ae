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

// accountDocument is the stored shape of an account. The credential variant is
// flattened: local accounts carry password_hash, federated ones external_id.
type accountDocument struct {
	ID            string     `bson:"_id"`
	Email         string     `bson:"email"`
	Name          string     `bson:"name"`
	AvatarURL     string     `bson:"avatar,omitempty"`
	Provider      string     `bson:"provider"`
	PasswordHash  string     `bson:"password_hash,omitempty"`
	ExternalID    string     `bson:"external_id,omitempty"`
	EmailVerified bool       `bson:"is_email_verified"`
	LastLoginAt   *time.Time `bson:"last_login,omitempty"`
	CreatedAt     time.Time  `bson:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at"`
}

func toAccountDocument(a *domain.Account) accountDocument {
	doc := accountDocument{
		ID:            a.ID,
		Email:         a.Email,
		Name:          a.Name,
		AvatarURL:     a.AvatarURL,
		Provider:      string(a.Provider()),
		EmailVerified: a.EmailVerified,
		LastLoginAt:   a.LastLoginAt,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
	switch c := a.Credential.(type) {
	case domain.LocalCredential:
		doc.PasswordHash = c.PasswordHash
	case domain.FederatedCredential:
		doc.ExternalID = c.ExternalID
	}
	return doc
}

func (d *accountDocument) toDomain() *domain.Account {
	a := &domain.Account{
		ID:            d.ID,
		Email:         d.Email,
		Name:          d.Name,
		AvatarURL:     d.AvatarURL,
		EmailVerified: d.EmailVerified,
		LastLoginAt:   d.LastLoginAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if p := domain.Provider(d.Provider); p == domain.ProviderLocal || p == "" {
		a.Credential = domain.LocalCredential{PasswordHash: d.PasswordHash}
	} else {
		a.Credential = domain.FederatedCredential{Source: p, ExternalID: d.ExternalID}
	}
	return a
}

// AccountRepository implements domain.AccountRepository
type AccountRepository struct {
	accounts *mongo.Collection
}

// NewAccountRepository creates a new AccountRepository and ensures its indexes.
func NewAccountRepository(ctx context.Context, db *mongo.Database) (*AccountRepository, error) {
	repo := &AccountRepository{
		accounts: db.Collection(AccountsCollection),
	}
	if err := repo.createIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create account indexes (might be due to existing compatible indexes or other non-critical issue)")
	}
	return repo, nil
}

func (r *AccountRepository) createIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// only federated accounts carry an external id
			Keys: bson.D{{Key: "provider", Value: 1}, {Key: "external_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{
				"external_id": bson.M{"$exists": true},
			}),
		},
	}

	_, err := r.accounts.Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		return fmt.Errorf("failed to create indexes for accounts collection: %w", err)
	}
	log.Info().Msg("Indexes for accounts collection ensured.")
	return nil
}

func (r *AccountRepository) findOne(ctx context.Context, filter bson.M) (*domain.Account, error) {
	var doc accountDocument
	if err := r.accounts.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		log.Error().Err(err).Interface("filter", filter).Msg("Error finding account in MongoDB")
		return nil, fmt.Errorf("find account: %w", err)
	}
	return doc.toDomain(), nil
}

// FindByID retrieves an account by its ID.
func (r *AccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// FindByEmail retrieves an account by its normalized email.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"email": domain.NormalizeEmail(email)})
}

// FindByExternalID retrieves a federated account by its provider subject id.
func (r *AccountRepository) FindByExternalID(ctx context.Context, provider domain.Provider, externalID string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"provider": string(provider), "external_id": externalID})
}

// Create inserts a new account.
func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	account.Email = domain.NormalizeEmail(account.Email)
	if err := account.Validate(); err != nil {
		return err
	}
	if account.ID == "" {
		account.ID = newDocumentID()
	}
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	if _, err := r.accounts.InsertOne(ctx, toAccountDocument(account)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicate
		}
		log.Error().Err(err).Str("account_id", account.ID).Msg("Error creating account in MongoDB")
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// Update applies the whitelisted fields with $set. A password update only
// matches local accounts.
func (r *AccountRepository) Update(ctx context.Context, id string, update domain.AccountUpdate) (*domain.Account, error) {
	if update.IsEmpty() {
		return r.FindByID(ctx, id)
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	filter := bson.M{"_id": id}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.AvatarURL != nil {
		set["avatar"] = *update.AvatarURL
	}
	if update.PasswordHash != nil {
		set["password_hash"] = *update.PasswordHash
		filter["provider"] = string(domain.ProviderLocal)
	}
	if update.LastLoginAt != nil {
		set["last_login"] = update.LastLoginAt.UTC()
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc accountDocument
	err := r.accounts.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		log.Error().Err(err).Str("account_id", id).Msg("Error updating account in MongoDB")
		return nil, fmt.Errorf("update account: %w", err)
	}
	return doc.toDomain(), nil
}

// LinkExternalIdentity switches the account to a federated credential in one
// update. The avatar is only filled in when the account has none.
func (r *AccountRepository) LinkExternalIdentity(ctx context.Context, id string, provider domain.Provider, externalID, avatarURL string) (*domain.Account, error) {
	current, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Provider() == provider && current.ExternalID() == externalID {
		return current, nil
	}

	set := bson.M{
		"provider":          string(provider),
		"external_id":       externalID,
		"is_email_verified": true,
		"updated_at":        time.Now().UTC(),
	}
	if current.AvatarURL == "" && avatarURL != "" {
		set["avatar"] = avatarURL
	}
	update := bson.M{
		"$set":   set,
		"$unset": bson.M{"password_hash": ""},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc accountDocument
	err = r.accounts.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrDuplicate
		}
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		log.Error().Err(err).Str("account_id", id).Msg("Error linking external identity in MongoDB")
		return nil, fmt.Errorf("link external identity: %w", err)
	}
	return doc.toDomain(), nil
}

var _ domain.AccountRepository = (*AccountRepository)(nil)
