package clustering

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metabrainz/messybrainz-clusterer/internal/entity"
	"github.com/pannpers/go-logging/logging"
)

// Rebuilder reconstructs clusters for one entity kind from scratch, running
// the without-anomalies phase followed by the anomaly-resolution phase on a
// single connection. It needs no canonicalizer of its own: every listen's
// per-kind MSID is precomputed and archived by the online clusterer
// (internal/clustering.Clusterer.archiveListen), so the rebuilder only ever
// reads MSIDs back out of the store.
type Rebuilder struct {
	pool   *pgxpool.Pool
	store  entity.ClusterStore
	logger *logging.Logger
}

// NewRebuilder creates a Rebuilder.
func NewRebuilder(pool *pgxpool.Pool, store entity.ClusterStore, logger *logging.Logger) *Rebuilder {
	return &Rebuilder{pool: pool, store: store, logger: logger}
}

// Stats summarizes one Rebuild run.
type Stats struct {
	ClustersModified      int
	ClustersAddedToRedirect int
}

// Rebuild runs phase 1 (without-anomalies) then phase 2 (anomalies) for
// kind, on a single connection shared by both phases.
func (r *Rebuilder) Rebuild(ctx context.Context, kind entity.Kind) (Stats, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return Stats{}, err
	}
	defer conn.Release()

	var stats Stats

	phase1, err := r.runPhase1(ctx, conn.Conn(), kind)
	if err != nil {
		return stats, err
	}
	stats.ClustersModified += phase1.ClustersModified
	stats.ClustersAddedToRedirect += phase1.ClustersAddedToRedirect

	phase2, err := r.runPhase2(ctx, conn.Conn(), kind)
	if err != nil {
		return stats, err
	}
	stats.ClustersAddedToRedirect += phase2.ClustersAddedToRedirect

	r.logger.Info(ctx, "rebuild complete",
		slog.String("kind", string(kind)),
		slog.Int("clusters_modified", stats.ClustersModified),
		slog.Int("clusters_added_to_redirect", stats.ClustersAddedToRedirect),
	)

	return stats, nil
}

// runPhase1 elects a representative for every MBID key that has no redirect
// row yet and assigns its unclustered MSIDs to that representative's
// cluster. All keys are processed in one transaction: the first error
// rolls back the whole phase and is returned.
func (r *Rebuilder) runPhase1(ctx context.Context, conn *pgx.Conn, kind entity.Kind) (Stats, error) {
	var stats Stats

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return stats, err
	}
	defer tx.Rollback(ctx)

	mbidKeys, err := r.store.FetchUnclusteredMBIDKeys(ctx, tx, kind)
	if err != nil {
		return stats, err
	}

	for _, mbidKey := range mbidKeys {
		gids, err := r.store.FetchUnclusteredGIDsFor(ctx, tx, kind, mbidKey)
		if err != nil {
			return stats, err
		}
		if len(gids) == 0 {
			continue
		}

		cluster, ok, err := r.store.LookupClusterByMBID(ctx, tx, kind, mbidKey)
		if err != nil {
			return stats, err
		}
		if !ok {
			// Representative election: the first unclustered gid. The store
			// returns gids in ascending order, so the choice is the lowest
			// gid of the set and reruns are deterministic.
			cluster = gids[0]
			if err := r.store.LinkMBID(ctx, tx, kind, cluster, mbidKey); err != nil {
				return stats, err
			}
			stats.ClustersAddedToRedirect++
		}

		if err := r.store.InsertMembership(ctx, tx, kind, cluster, gids); err != nil {
			return stats, err
		}
		stats.ClustersModified++
	}

	if err := tx.Commit(ctx); err != nil {
		return stats, err
	}
	return stats, nil
}

// runPhase2 resolves anomalies: MBID keys whose MSIDs were fully placed
// into clusters during phase 1 through another key's election, leaving this
// key without its own redirect row. LinkMBID is called for every cluster
// the key's MSIDs ended up in. The redirect tables key their rows by MBID
// alone, so only the first of those links is stored; the others are
// no-ops, although each call is still counted in ClustersAddedToRedirect.
func (r *Rebuilder) runPhase2(ctx context.Context, conn *pgx.Conn, kind entity.Kind) (Stats, error) {
	var stats Stats

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return stats, err
	}
	defer tx.Rollback(ctx)

	leftOver, err := r.store.FetchMBIDKeysLeftOver(ctx, tx, kind)
	if err != nil {
		return stats, err
	}

	for _, mbidKey := range leftOver {
		gids, err := r.store.GIDsForMBIDKey(ctx, tx, kind, mbidKey)
		if err != nil {
			return stats, err
		}

		clusters := make(map[uuid.UUID]struct{})
		for _, gid := range gids {
			cluster, ok, err := r.store.LookupClusterByMSID(ctx, tx, kind, gid)
			if err != nil {
				return stats, err
			}
			if ok {
				clusters[cluster] = struct{}{}
			}
		}

		for cluster := range clusters {
			if err := r.store.LinkMBID(ctx, tx, kind, cluster, mbidKey); err != nil {
				return stats, err
			}
			stats.ClustersAddedToRedirect++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return stats, err
	}
	return stats, nil
}
