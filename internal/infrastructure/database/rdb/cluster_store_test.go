package rdb_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/metabrainz/messybrainz-clusterer/internal/entity"
	"github.com/metabrainz/messybrainz-clusterer/internal/infrastructure/database/rdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withTx(t *testing.T, fn func(ctx context.Context, tx pgx.Tx)) {
	t.Helper()
	cleanDatabase()

	ctx := context.Background()
	tx, err := testDB.Pool.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	fn(ctx, tx)
}

func TestClusterStore_LookupClusterByMBID_NotFound(t *testing.T) {
	store := rdb.NewClusterStore()

	withTx(t, func(ctx context.Context, tx pgx.Tx) {
		_, ok, err := store.LookupClusterByMBID(ctx, tx, entity.Recording, []uuid.UUID{uuid.New()})
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestClusterStore_InsertMembership_InsertAndLink(t *testing.T) {
	store := rdb.NewClusterStore()

	withTx(t, func(ctx context.Context, tx pgx.Tx) {
		cluster := uuid.New()
		mbidKey := []uuid.UUID{uuid.New()}

		require.NoError(t, store.InsertMembership(ctx, tx, entity.Recording, cluster, []uuid.UUID{cluster}))
		require.NoError(t, store.LinkMBID(ctx, tx, entity.Recording, cluster, mbidKey))

		got, ok, err := store.LookupClusterByMBID(ctx, tx, entity.Recording, mbidKey)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, cluster, got)

		gotMember, ok, err := store.LookupClusterByMSID(ctx, tx, entity.Recording, cluster)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, cluster, gotMember)
	})
}

func TestClusterStore_InsertMembership_DuplicateIsNoOp(t *testing.T) {
	store := rdb.NewClusterStore()

	withTx(t, func(ctx context.Context, tx pgx.Tx) {
		cluster := uuid.New()
		member := uuid.New()

		require.NoError(t, store.InsertMembership(ctx, tx, entity.Recording, cluster, []uuid.UUID{member}))
		require.NoError(t, store.InsertMembership(ctx, tx, entity.Recording, cluster, []uuid.UUID{member}))

		got, ok, err := store.LookupClusterByMSID(ctx, tx, entity.Recording, member)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, cluster, got)
	})
}

func TestClusterStore_LinkMBID_DuplicateIsNoOp(t *testing.T) {
	store := rdb.NewClusterStore()

	withTx(t, func(ctx context.Context, tx pgx.Tx) {
		cluster := uuid.New()
		mbidKey := []uuid.UUID{uuid.New()}

		require.NoError(t, store.InsertMembership(ctx, tx, entity.Recording, cluster, []uuid.UUID{cluster}))
		require.NoError(t, store.LinkMBID(ctx, tx, entity.Recording, cluster, mbidKey))
		require.NoError(t, store.LinkMBID(ctx, tx, entity.Recording, cluster, mbidKey))

		got, ok, err := store.LookupClusterByMBID(ctx, tx, entity.Recording, mbidKey)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, cluster, got)
	})
}

func TestClusterStore_InsertMembership_GIDUniqueAcrossClusters(t *testing.T) {
	store := rdb.NewClusterStore()

	withTx(t, func(ctx context.Context, tx pgx.Tx) {
		clusterA := uuid.New()
		clusterB := uuid.New()
		member := uuid.New()

		require.NoError(t, store.InsertMembership(ctx, tx, entity.Recording, clusterA, []uuid.UUID{member}))

		err := store.InsertMembership(ctx, tx, entity.Recording, clusterB, []uuid.UUID{member})
		assert.True(t, rdb.IsUniqueViolation(err) || err != nil)
	})
}

func TestClusterStore_ArtistCreditRedirect_OrderedKeyEquality(t *testing.T) {
	store := rdb.NewClusterStore()

	withTx(t, func(ctx context.Context, tx pgx.Tx) {
		a, b := uuid.New(), uuid.New()
		cluster := uuid.New()

		key := entity.ArtistMBIDKey([]uuid.UUID{a, b})
		reversedKey := entity.ArtistMBIDKey([]uuid.UUID{b, a})
		assert.Equal(t, key, reversedKey)

		require.NoError(t, store.InsertMembership(ctx, tx, entity.ArtistCredit, cluster, []uuid.UUID{cluster}))
		require.NoError(t, store.LinkMBID(ctx, tx, entity.ArtistCredit, cluster, key))

		got, ok, err := store.LookupClusterByMBID(ctx, tx, entity.ArtistCredit, reversedKey)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, cluster, got)
	})
}
