// Package testutil holds helpers shared by tests that need an external
// backend. Tests using these helpers skip cleanly when the backend is not
// reachable, so the default `go test ./...` run stays hermetic.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GetMongoClient connects to the MongoDB named by AGENDA_TEST_MONGO_URI
// and skips the test when the variable is unset or the server does not
// answer a ping.
func GetMongoClient(t *testing.T) *mongo.Client {
	t.Helper()

	uri := os.Getenv("AGENDA_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("AGENDA_TEST_MONGO_URI not set; skipping mongo-backed test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Skipf("mongo connect failed: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		t.Skipf("mongo ping failed: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Disconnect(context.Background())
	})
	return client
}
