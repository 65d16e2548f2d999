package checkpoint

import (
	"context"
	"testing"

	"github.com/petrijr/agenda/internal/testutil"
)

func TestMongoStore(t *testing.T) {
	client := testutil.GetMongoClient(t)

	store := NewMongoStore(client, "agenda_test", "checkpoints")
	t.Cleanup(func() {
		_ = client.Database("agenda_test").Drop(context.Background())
	})

	testStoreConformance(t, store)
}
