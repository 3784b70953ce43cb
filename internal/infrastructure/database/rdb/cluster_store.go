package rdb

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/metabrainz/messybrainz-clusterer/internal/entity"
)

// ClusterStore is the pgx-backed implementation of entity.ClusterStore. Its
// methods are written once and parameterized by entity.Kind rather than
// duplicated per entity, mirroring the higher-order-function shape of the
// original rebuild logic.
type ClusterStore struct{}

// NewClusterStore creates a ClusterStore.
func NewClusterStore() *ClusterStore {
	return &ClusterStore{}
}

type tableSet struct {
	cluster  string
	redirect string
	// mbidColumn is "mbid" for a single-UUID redirect key (recording,
	// release) or "mbids" for the ordered array key (artist_credit).
	mbidColumn string
}

// tablesFor also governs, via the per-kind query bodies below, which listens
// column holds each kind's precomputed MSID: recording_msid, artist_credit_
// msid, or release_msid. Those are minted in separate canonicalizer
// namespaces (internal/canonicalize) and are never interchangeable — an
// artist-credit or release gid must never be a recording_msid.
func tablesFor(kind entity.Kind) (tableSet, error) {
	switch kind {
	case entity.Recording:
		return tableSet{cluster: "recording_cluster", redirect: "recording_redirect", mbidColumn: "mbid"}, nil
	case entity.ArtistCredit:
		return tableSet{cluster: "artist_credit_cluster", redirect: "artist_credit_redirect", mbidColumn: "mbids"}, nil
	case entity.Release:
		return tableSet{cluster: "release_cluster", redirect: "release_redirect", mbidColumn: "mbid"}, nil
	default:
		return tableSet{}, fmt.Errorf("unknown entity kind %q", kind)
	}
}

// mbidArg renders mbidKey as the value the redirect table's mbid column
// expects: a bare UUID for recording/release, a UUID array for
// artist_credit.
func mbidArg(tables tableSet, mbidKey []uuid.UUID) (any, error) {
	if tables.mbidColumn == "mbids" {
		return mbidKey, nil
	}
	if len(mbidKey) != 1 {
		return nil, fmt.Errorf("expected single-element mbid key for column %q, got %d elements", tables.mbidColumn, len(mbidKey))
	}
	return mbidKey[0], nil
}

func (s *ClusterStore) LookupClusterByMBID(ctx context.Context, tx pgx.Tx, kind entity.Kind, mbidKey []uuid.UUID) (uuid.UUID, bool, error) {
	tables, err := tablesFor(kind)
	if err != nil {
		return uuid.Nil, false, err
	}
	arg, err := mbidArg(tables, mbidKey)
	if err != nil {
		return uuid.Nil, false, err
	}

	query := fmt.Sprintf("SELECT cluster_id FROM %s WHERE %s = $1", tables.redirect, tables.mbidColumn)

	var clusterID uuid.UUID
	err = tx.QueryRow(ctx, query, arg).Scan(&clusterID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, toAppErr(err, "lookup cluster by mbid")
	}
	return clusterID, true, nil
}

func (s *ClusterStore) LookupClusterByMSID(ctx context.Context, tx pgx.Tx, kind entity.Kind, gid uuid.UUID) (uuid.UUID, bool, error) {
	tables, err := tablesFor(kind)
	if err != nil {
		return uuid.Nil, false, err
	}

	query := fmt.Sprintf("SELECT cluster_id FROM %s WHERE gid = $1", tables.cluster)

	var clusterID uuid.UUID
	err = tx.QueryRow(ctx, query, gid).Scan(&clusterID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, toAppErr(err, "lookup cluster by msid")
	}
	return clusterID, true, nil
}

func (s *ClusterStore) InsertMembership(ctx context.Context, tx pgx.Tx, kind entity.Kind, clusterID uuid.UUID, gids []uuid.UUID) error {
	tables, err := tablesFor(kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (cluster_id, gid) VALUES ($1, $2) ON CONFLICT (cluster_id, gid) DO NOTHING",
		tables.cluster,
	)

	for _, gid := range gids {
		if _, err := tx.Exec(ctx, query, clusterID, gid); err != nil {
			return toAppErr(err, "insert membership")
		}
	}
	return nil
}

func (s *ClusterStore) LinkMBID(ctx context.Context, tx pgx.Tx, kind entity.Kind, clusterID uuid.UUID, mbidKey []uuid.UUID) error {
	tables, err := tablesFor(kind)
	if err != nil {
		return err
	}
	arg, err := mbidArg(tables, mbidKey)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (cluster_id, %s) VALUES ($1, $2) ON CONFLICT (%s) DO NOTHING",
		tables.redirect, tables.mbidColumn, tables.mbidColumn,
	)

	if _, err := tx.Exec(ctx, query, clusterID, arg); err != nil {
		return toAppErr(err, "link mbid")
	}
	return nil
}

// FetchUnclusteredMBIDKeys returns every distinct MBID key present in the
// listens table whose associated MSIDs are not yet members of any cluster
// row.
func (s *ClusterStore) FetchUnclusteredMBIDKeys(ctx context.Context, tx pgx.Tx, kind entity.Kind) ([][]uuid.UUID, error) {
	tables, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}

	var query string
	switch kind {
	case entity.Recording:
		query = fmt.Sprintf(`
			SELECT DISTINCT l.recording_mbid
			FROM listens l
			WHERE l.recording_mbid IS NOT NULL
			  AND NOT EXISTS (SELECT 1 FROM %s c WHERE c.gid = l.recording_msid)`,
			tables.cluster)
	case entity.Release:
		query = fmt.Sprintf(`
			SELECT DISTINCT l.release_mbid
			FROM listens l
			WHERE l.release_mbid IS NOT NULL
			  AND l.release_msid IS NOT NULL
			  AND NOT EXISTS (SELECT 1 FROM %s c WHERE c.gid = l.release_msid)`,
			tables.cluster)
	case entity.ArtistCredit:
		query = fmt.Sprintf(`
			SELECT DISTINCT l.artist_mbids
			FROM listens l
			WHERE cardinality(l.artist_mbids) > 0
			  AND NOT EXISTS (SELECT 1 FROM %s c WHERE c.gid = l.artist_credit_msid)`,
			tables.cluster)
	}

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, toAppErr(err, "fetch unclustered mbid keys")
	}
	defer rows.Close()

	var keys [][]uuid.UUID
	for rows.Next() {
		if kind == entity.ArtistCredit {
			var mbids []uuid.UUID
			if err := rows.Scan(&mbids); err != nil {
				return nil, toAppErr(err, "scan unclustered mbid key")
			}
			keys = append(keys, entity.ArtistMBIDKey(mbids))
		} else {
			var mbid uuid.UUID
			if err := rows.Scan(&mbid); err != nil {
				return nil, toAppErr(err, "scan unclustered mbid key")
			}
			keys = append(keys, []uuid.UUID{mbid})
		}
	}
	return keys, rows.Err()
}

// FetchUnclusteredGIDsFor returns MSIDs that canonicalize from listens
// bearing mbidKey and are not yet in any cluster, in ascending order.
func (s *ClusterStore) FetchUnclusteredGIDsFor(ctx context.Context, tx pgx.Tx, kind entity.Kind, mbidKey []uuid.UUID) ([]uuid.UUID, error) {
	tables, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}

	var query string
	var arg any
	switch kind {
	case entity.Recording:
		query = fmt.Sprintf(`
			SELECT DISTINCT l.recording_msid
			FROM listens l
			WHERE l.recording_mbid = $1
			  AND NOT EXISTS (SELECT 1 FROM %s c WHERE c.gid = l.recording_msid)
			ORDER BY l.recording_msid`,
			tables.cluster)
		arg = mbidKey[0]
	case entity.Release:
		query = fmt.Sprintf(`
			SELECT DISTINCT l.release_msid
			FROM listens l
			WHERE l.release_mbid = $1
			  AND l.release_msid IS NOT NULL
			  AND NOT EXISTS (SELECT 1 FROM %s c WHERE c.gid = l.release_msid)
			ORDER BY l.release_msid`,
			tables.cluster)
		arg = mbidKey[0]
	case entity.ArtistCredit:
		query = fmt.Sprintf(`
			SELECT DISTINCT l.artist_credit_msid
			FROM listens l
			WHERE l.artist_mbids = $1
			  AND NOT EXISTS (SELECT 1 FROM %s c WHERE c.gid = l.artist_credit_msid)
			ORDER BY l.artist_credit_msid`,
			tables.cluster)
		arg = mbidKey
	}

	rows, err := tx.Query(ctx, query, arg)
	if err != nil {
		return nil, toAppErr(err, "fetch unclustered gids for mbid key")
	}
	defer rows.Close()

	var gids []uuid.UUID
	for rows.Next() {
		var gid uuid.UUID
		if err := rows.Scan(&gid); err != nil {
			return nil, toAppErr(err, "scan unclustered gid")
		}
		gids = append(gids, gid)
	}
	return gids, rows.Err()
}

// FetchMBIDKeysLeftOver returns, after the without-anomalies pass, MBID keys
// whose MSIDs have all been placed into clusters yet no redirect row exists
// for the key.
func (s *ClusterStore) FetchMBIDKeysLeftOver(ctx context.Context, tx pgx.Tx, kind entity.Kind) ([][]uuid.UUID, error) {
	tables, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}

	var query string
	switch kind {
	case entity.Recording:
		query = fmt.Sprintf(`
			SELECT DISTINCT l.recording_mbid
			FROM listens l
			WHERE l.recording_mbid IS NOT NULL
			  AND EXISTS (SELECT 1 FROM %s c WHERE c.gid = l.recording_msid)
			  AND NOT EXISTS (SELECT 1 FROM %s r WHERE r.%s = l.recording_mbid)`,
			tables.cluster, tables.redirect, tables.mbidColumn)
	case entity.Release:
		query = fmt.Sprintf(`
			SELECT DISTINCT l.release_mbid
			FROM listens l
			WHERE l.release_mbid IS NOT NULL
			  AND l.release_msid IS NOT NULL
			  AND EXISTS (SELECT 1 FROM %s c WHERE c.gid = l.release_msid)
			  AND NOT EXISTS (SELECT 1 FROM %s r WHERE r.%s = l.release_mbid)`,
			tables.cluster, tables.redirect, tables.mbidColumn)
	case entity.ArtistCredit:
		query = fmt.Sprintf(`
			SELECT DISTINCT l.artist_mbids
			FROM listens l
			WHERE cardinality(l.artist_mbids) > 0
			  AND EXISTS (SELECT 1 FROM %s c WHERE c.gid = l.artist_credit_msid)
			  AND NOT EXISTS (SELECT 1 FROM %s r WHERE r.%s = l.artist_mbids)`,
			tables.cluster, tables.redirect, tables.mbidColumn)
	}

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, toAppErr(err, "fetch leftover mbid keys")
	}
	defer rows.Close()

	var keys [][]uuid.UUID
	for rows.Next() {
		if kind == entity.ArtistCredit {
			var mbids []uuid.UUID
			if err := rows.Scan(&mbids); err != nil {
				return nil, toAppErr(err, "scan leftover mbid key")
			}
			keys = append(keys, entity.ArtistMBIDKey(mbids))
		} else {
			var mbid uuid.UUID
			if err := rows.Scan(&mbid); err != nil {
				return nil, toAppErr(err, "scan leftover mbid key")
			}
			keys = append(keys, []uuid.UUID{mbid})
		}
	}
	return keys, rows.Err()
}

// GIDsForMBIDKey returns the distinct MSIDs that canonicalize from listens
// bearing mbidKey, regardless of cluster membership.
func (s *ClusterStore) GIDsForMBIDKey(ctx context.Context, tx pgx.Tx, kind entity.Kind, mbidKey []uuid.UUID) ([]uuid.UUID, error) {
	var query string
	var arg any
	switch kind {
	case entity.Recording:
		query = `SELECT DISTINCT recording_msid FROM listens WHERE recording_mbid = $1`
		arg = mbidKey[0]
	case entity.Release:
		query = `SELECT DISTINCT release_msid FROM listens WHERE release_mbid = $1 AND release_msid IS NOT NULL`
		arg = mbidKey[0]
	case entity.ArtistCredit:
		query = `SELECT DISTINCT artist_credit_msid FROM listens WHERE artist_mbids = $1`
		arg = mbidKey
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}

	rows, err := tx.Query(ctx, query, arg)
	if err != nil {
		return nil, toAppErr(err, "gids for mbid key")
	}
	defer rows.Close()

	var gids []uuid.UUID
	for rows.Next() {
		var gid uuid.UUID
		if err := rows.Scan(&gid); err != nil {
			return nil, toAppErr(err, "scan gid for mbid key")
		}
		gids = append(gids, gid)
	}
	return gids, rows.Err()
}

func (s *ClusterStore) Truncate(ctx context.Context, tx pgx.Tx, kind entity.Kind) error {
	tables, err := tablesFor(kind)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", tables.redirect)); err != nil {
		return toAppErr(err, "truncate redirect table")
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", tables.cluster)); err != nil {
		return toAppErr(err, "truncate cluster table")
	}
	return nil
}

var _ entity.ClusterStore = (*ClusterStore)(nil)
