package checkpoint

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestSQLiteStore(t *testing.T) {
	db, err := sql.Open("sqlite", "file:agenda_checkpoint_test.db?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewSQLiteStore(db)
	require.NoError(t, err)

	testStoreConformance(t, store)
}

func TestSQLiteStore_SchemaInitIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite", "file:agenda_checkpoint_schema_test.db?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = NewSQLiteStore(db)
	require.NoError(t, err)
	_, err = NewSQLiteStore(db)
	require.NoError(t, err)
}
