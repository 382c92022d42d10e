package badger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/louisbranch/metas/internal/services/metas/storage"
	"github.com/louisbranch/metas/internal/services/metas/storage/storagetest"
)

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		store, err := Open(InMemoryConfig())
		require.NoError(t, err)
		return store
	})
}

func TestOpenRequiresDir(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.Logger = zaptest.NewLogger(t)

	first, err := Open(cfg)
	require.NoError(t, err)
	fx := storagetest.Seed(t, first, "a")
	require.NoError(t, first.Close())

	second, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	windows, err := second.ListWindows(context.Background(), fx.Period.ID)
	require.NoError(t, err)
	require.Len(t, windows, len(fx.Windows))
	for i, w := range windows {
		require.Equal(t, fx.Windows[i].ID, w.ID)
	}

	g, err := second.GetGoal(context.Background(), fx.Goal.ID)
	require.NoError(t, err)
	require.Equal(t, fx.Goal.Name, g.Name)
}

func TestEmptyLedger(t *testing.T) {
	store, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	fx := storagetest.Seed(t, store, "a")
	windows := fx.Windows
	require.NotEmpty(t, windows)

	page, err := store.ListResults(context.Background(), storage.ResultQuery{PageSize: 5})
	require.NoError(t, err)
	require.Empty(t, page.Results)
	require.Empty(t, page.NextPageToken)

	_, err = store.GetResultBySlot(context.Background(), fx.Goal.ID, windows[0].ID)
	require.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestCloseNilStore(t *testing.T) {
	store, err := Open(InMemoryConfig())
	require.NoError(t, err)
	require.NoError(t, store.Close())
	var nilStore *Store
	require.NoError(t, nilStore.Close())
}
