package mongodb

import "go.mongodb.org/mongo-driver/bson/primitive"

// Collection names. Accounts and events keep their legacy names.
const (
	AccountsCollection      = "users"
	RefreshTokensCollection = "refresh_tokens"
	EventsCollection        = "user_events"
	ConversionsCollection   = "conversions"
)

// newDocumentID returns a fresh ObjectID in hex, the string form every
// repository stores in _id.
func newDocumentID() string {
	return primitive.NewObjectID().Hex()
}
