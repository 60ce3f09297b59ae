// Package testutil provides throwaway MongoDB databases for integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	connectTimeout = 15 * time.Second
	dropTimeout    = 10 * time.Second
)

// URI returns the MongoDB URI for integration tests, or "" when they should
// be skipped. TEST_MONGO_URI_CI overrides TEST_MONGO_URI when CI is set.
func URI() string {
	if os.Getenv("CI") != "" {
		if uri := os.Getenv("TEST_MONGO_URI_CI"); uri != "" {
			return uri
		}
	}
	return os.Getenv("TEST_MONGO_URI")
}

// Database connects to a uniquely named database that is dropped when the
// test ends. The test is skipped when no URI is configured.
func Database(t *testing.T, prefix string) *mongo.Database {
	t.Helper()

	uri := URI()
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set, skipping MongoDB integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetServerSelectionTimeout(connectTimeout))
	if err != nil {
		t.Fatalf("connect to MongoDB: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		t.Fatalf("ping MongoDB: %v", err)
	}

	db := client.Database(fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), dropTimeout)
		defer cancel()
		if err := db.Drop(ctx); err != nil {
			t.Logf("drop database %s: %v", db.Name(), err)
		}
		if err := client.Disconnect(ctx); err != nil {
			t.Logf("disconnect MongoDB: %v", err)
		}
	})
	return db
}
