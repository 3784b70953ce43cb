package clustering_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/metabrainz/messybrainz-clusterer/internal/canonicalize"
	"github.com/metabrainz/messybrainz-clusterer/internal/clustering"
	"github.com/metabrainz/messybrainz-clusterer/internal/entity"
	"github.com/metabrainz/messybrainz-clusterer/internal/infrastructure/database/rdb"
	"github.com/pannpers/go-logging/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRebuilder(t *testing.T) *clustering.Rebuilder {
	t.Helper()
	logger, err := logging.New()
	require.NoError(t, err)
	return clustering.NewRebuilder(testDB.Pool, rdb.NewClusterStore(), logger)
}

// rawListen is the raw row shape insertRawListen writes: it mirrors what
// internal/clustering.Clusterer.archiveListen would have archived, MSIDs
// included, without going through the online protocol.
type rawListen struct {
	artist        string
	title         string
	release       string
	recordingMBID *uuid.UUID
	artistMBIDs   []uuid.UUID
	releaseMBID   *uuid.UUID
}

// insertRawListen inserts one listens row, computing its three MSIDs the
// same way the online archiver does, and returns them for the caller's
// assertions.
func insertRawListen(t *testing.T, row rawListen) (recordingMSID, artistCreditMSID uuid.UUID, releaseMSID *uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	canon := canonicalize.New()

	recordingMSID, err := canon.RecordingMSID(ctx, row.artist, row.title, row.release)
	require.NoError(t, err)
	artistCreditMSID, err = canon.ArtistCreditMSID(ctx, row.artist)
	require.NoError(t, err)

	if row.release != "" {
		msid, err := canon.ReleaseMSID(ctx, row.release)
		require.NoError(t, err)
		releaseMSID = &msid
	}

	artistMBIDs := row.artistMBIDs
	if artistMBIDs == nil {
		artistMBIDs = []uuid.UUID{}
	}

	_, err = testDB.Pool.Exec(ctx, `
		INSERT INTO listens
			(recording_msid, artist_credit_msid, release_msid, artist_credit, title, release, recording_mbid, release_mbid, artist_mbids, body)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, '{}')`,
		recordingMSID, artistCreditMSID, releaseMSID, row.artist, row.title, row.release, row.recordingMBID, row.releaseMBID, artistMBIDs)
	require.NoError(t, err)

	return recordingMSID, artistCreditMSID, releaseMSID
}

// S6 — Anomaly batch phase: two recording MBIDs share a textually
// identical recording, so phase 1 elects one of them as the redirect and
// phase 2 links the other to the same cluster.
func TestRebuild_S6_AnomalyPhaseLinksSecondMBID(t *testing.T) {
	cleanDatabase()
	ctx := context.Background()

	mbidA, mbidB := uuid.New(), uuid.New()
	msid, _, _ := insertRawListen(t, rawListen{artist: "A", title: "Same", recordingMBID: &mbidA})
	insertRawListen(t, rawListen{artist: "A", title: "Same", recordingMBID: &mbidB})

	rebuilder := newRebuilder(t)
	_, err := rebuilder.Rebuild(ctx, entity.Recording)
	require.NoError(t, err)

	store := rdb.NewClusterStore()
	tx, err := testDB.Pool.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	clusterA, okA, err := store.LookupClusterByMBID(ctx, tx, entity.Recording, []uuid.UUID{mbidA})
	require.NoError(t, err)
	clusterB, okB, err := store.LookupClusterByMBID(ctx, tx, entity.Recording, []uuid.UUID{mbidB})
	require.NoError(t, err)

	require.True(t, okA)
	require.True(t, okB)
	assert.Equal(t, msid, clusterA)
	assert.Equal(t, msid, clusterB)

	var redirectCount int
	require.NoError(t, testDB.Pool.QueryRow(ctx, "SELECT count(*) FROM recording_redirect WHERE cluster_id = $1", msid).Scan(&redirectCount))
	assert.Equal(t, 2, redirectCount)
}

// Phase 1 elects the single MSID as representative when an MBID has only
// one distinct associated recording text.
func TestRebuild_Phase1_ElectsRepresentative(t *testing.T) {
	cleanDatabase()
	ctx := context.Background()

	mbid := uuid.New()
	msid, _, _ := insertRawListen(t, rawListen{artist: "Artist", title: "Title", recordingMBID: &mbid})

	rebuilder := newRebuilder(t)
	stats, err := rebuilder.Rebuild(ctx, entity.Recording)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ClustersModified)
	assert.Equal(t, 1, stats.ClustersAddedToRedirect)

	store := rdb.NewClusterStore()
	var tx pgx.Tx
	tx, err = testDB.Pool.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	cluster, ok, err := store.LookupClusterByMBID(ctx, tx, entity.Recording, []uuid.UUID{mbid})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, msid, cluster)
}

// Rebuild from an empty store is a no-op and never errors.
func TestRebuild_EmptyStore(t *testing.T) {
	cleanDatabase()
	rebuilder := newRebuilder(t)

	stats, err := rebuilder.Rebuild(context.Background(), entity.Recording)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ClustersModified)
	assert.Equal(t, 0, stats.ClustersAddedToRedirect)
}

// Rebuilding artist_credit must cluster on the artist-credit MSID namespace,
// never on the recording MSID of the listens that carried the credit.
func TestRebuild_ArtistCredit_UsesArtistCreditNamespace(t *testing.T) {
	cleanDatabase()
	ctx := context.Background()

	artistMBID := uuid.New()
	recordingMSID, artistCreditMSID, _ := insertRawListen(t, rawListen{
		artist:      "Only Artist",
		title:       "Some Title",
		artistMBIDs: []uuid.UUID{artistMBID},
	})
	require.NotEqual(t, recordingMSID, artistCreditMSID)

	rebuilder := newRebuilder(t)
	stats, err := rebuilder.Rebuild(ctx, entity.ArtistCredit)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ClustersModified)

	store := rdb.NewClusterStore()
	tx, err := testDB.Pool.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	cluster, ok, err := store.LookupClusterByMBID(ctx, tx, entity.ArtistCredit, entity.ArtistMBIDKey([]uuid.UUID{artistMBID}))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, artistCreditMSID, cluster)
	assert.NotEqual(t, recordingMSID, cluster)

	membershipCluster, ok, err := store.LookupClusterByMSID(ctx, tx, entity.ArtistCredit, artistCreditMSID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, artistCreditMSID, membershipCluster)

	// The recording MSID must never show up as a member of the
	// artist-credit cluster table.
	_, ok, err = store.LookupClusterByMSID(ctx, tx, entity.ArtistCredit, recordingMSID)
	require.NoError(t, err)
	assert.False(t, ok)
}

// Rebuilding release must cluster on the release MSID namespace, never on
// the recording MSID of the listens that named the release.
func TestRebuild_Release_UsesReleaseNamespace(t *testing.T) {
	cleanDatabase()
	ctx := context.Background()

	releaseMBID := uuid.New()
	recordingMSID, _, releaseMSID := insertRawListen(t, rawListen{
		artist:      "Artist",
		title:       "Title",
		release:     "Greatest Hits",
		releaseMBID: &releaseMBID,
	})
	require.NotNil(t, releaseMSID)
	require.NotEqual(t, recordingMSID, *releaseMSID)

	rebuilder := newRebuilder(t)
	stats, err := rebuilder.Rebuild(ctx, entity.Release)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ClustersModified)

	store := rdb.NewClusterStore()
	tx, err := testDB.Pool.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	cluster, ok, err := store.LookupClusterByMBID(ctx, tx, entity.Release, []uuid.UUID{releaseMBID})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, *releaseMSID, cluster)
	assert.NotEqual(t, recordingMSID, cluster)
}
