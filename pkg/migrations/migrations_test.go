package migrations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tankobon/tankobon/pkg/config"
	"github.com/tankobon/tankobon/pkg/database"
)

func TestBringUpToDate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := database.New(config.NewForTest())
	require.NoError(t, err)
	defer db.Close()

	pending, err := Pending(ctx, db)
	require.NoError(t, err)
	assert.Len(t, pending, len(Migrations.Sorted()))

	group, err := BringUpToDate(ctx, db)
	require.NoError(t, err)
	assert.False(t, group.IsZero())

	for _, table := range []string{"series", "chapters", "manga_files", "bookmarks"} {
		var count int
		err := db.NewSelect().
			ColumnExpr("COUNT(*)").
			TableExpr("sqlite_master").
			Where("type = 'table' AND name = ?", table).
			Scan(ctx, &count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, table)
	}

	pending, err = Pending(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, pending)

	group, err = BringUpToDate(ctx, db)
	require.NoError(t, err)
	assert.True(t, group.IsZero())
}
