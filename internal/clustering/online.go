// Package clustering implements the per-listen clustering protocol and the
// batch rebuilder that reconstructs clusters from the listen archive.
package clustering

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metabrainz/messybrainz-clusterer/internal/entity"
	"github.com/metabrainz/messybrainz-clusterer/internal/infrastructure/database/rdb"
	"github.com/metabrainz/messybrainz-clusterer/internal/infrastructure/musicbrainzdb"
	"github.com/pannpers/go-logging/logging"
)

// Clusterer runs the online per-listen protocol (blocks R, A, Rl), each in
// its own transaction, swallowing integrity violations and missing-metadata
// errors at the block boundary so a single bad message can never wedge the
// worker loop.
type Clusterer struct {
	pool     *pgxpool.Pool
	store    entity.ClusterStore
	listens  entity.ListenStore
	canon    entity.Canonicalizer
	metadata entity.MetadataClient
	logger   *logging.Logger
}

// New creates a Clusterer.
func New(pool *pgxpool.Pool, store entity.ClusterStore, listens entity.ListenStore, canon entity.Canonicalizer, metadata entity.MetadataClient, logger *logging.Logger) *Clusterer {
	return &Clusterer{pool: pool, store: store, listens: listens, canon: canon, metadata: metadata, logger: logger}
}

// ProcessListen runs the full per-listen protocol: archiving the listen,
// then blocks R, A, and Rl, each swallowing its own failures so the others
// still run.
func (c *Clusterer) ProcessListen(ctx context.Context, listen entity.Listen, body []byte) error {
	recordingMSID, err := c.canon.RecordingMSID(ctx, listen.Artist, listen.Title, listen.Release)
	if err != nil {
		return err
	}

	if err := c.archiveListen(ctx, recordingMSID, listen, body); err != nil {
		c.logger.Error(ctx, "failed to archive listen, continuing with clustering", err)
	}

	if listen.RecordingMBID != nil {
		c.swallow(ctx, "block R", c.runBlockR(ctx, recordingMSID, listen))
	}

	if listen.ArtistMBIDs != nil {
		c.swallow(ctx, "block A", c.runBlockA(ctx, listen.Artist, listen.ArtistMBIDs))
	}

	if listen.ReleaseMBID != nil && listen.HasRelease() {
		c.swallow(ctx, "block Rl", c.runBlockRl(ctx, listen.Release, *listen.ReleaseMBID))
	}

	return nil
}

// swallow logs a block failure without propagating it: an integrity
// violation is expected under concurrent writers and logged at debug level,
// anything else is logged as a warning so operators can still notice
// persistent problems (a bad canonicalizer, a broken metadata connection)
// without the worker ever re-queuing the message.
func (c *Clusterer) swallow(ctx context.Context, block string, err error) {
	if err == nil {
		return
	}
	if rdb.IsUniqueViolation(err) {
		c.logger.Debug(ctx, block+" skipped: integrity violation", slog.String("error", err.Error()))
		return
	}
	c.logger.Warn(ctx, block+" skipped", slog.String("error", err.Error()))
}

func (c *Clusterer) archiveListen(ctx context.Context, recordingMSID uuid.UUID, listen entity.Listen, body []byte) error {
	artistCreditMSID, err := c.canon.ArtistCreditMSID(ctx, listen.Artist)
	if err != nil {
		return err
	}

	var releaseMSID *uuid.UUID
	if listen.HasRelease() {
		msid, err := c.canon.ReleaseMSID(ctx, listen.Release)
		if err != nil {
			return err
		}
		releaseMSID = &msid
	}

	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := c.listens.InsertListen(ctx, tx, recordingMSID, artistCreditMSID, releaseMSID, listen, body); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// runBlockR implements the recording block, including its two derived
// sub-blocks. All five steps share one transaction: a unique-constraint
// failure anywhere in the block aborts the whole transaction and is
// swallowed by the caller, which also silently discards whatever the
// derived sub-blocks would otherwise have done. This is deliberate fidelity
// to the source's single try/except around the whole block (see DESIGN.md).
func (c *Clusterer) runBlockR(ctx context.Context, recordingMSID uuid.UUID, listen entity.Listen) error {
	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	recordingMBIDKey := []uuid.UUID{*listen.RecordingMBID}

	cluster, ok, err := c.store.LookupClusterByMBID(ctx, tx, entity.Recording, recordingMBIDKey)
	if err != nil {
		return err
	}
	if ok {
		if err := c.store.InsertMembership(ctx, tx, entity.Recording, cluster, []uuid.UUID{recordingMSID}); err != nil {
			return err
		}
	} else {
		cluster = recordingMSID
		if err := c.store.InsertMembership(ctx, tx, entity.Recording, cluster, []uuid.UUID{recordingMSID}); err != nil {
			return err
		}
		if err := c.store.LinkMBID(ctx, tx, entity.Recording, cluster, recordingMBIDKey); err != nil {
			return err
		}
	}

	// Derived artist-credit cluster: only when the listen did not carry its
	// own artist_mbids.
	if listen.ArtistMBIDs == nil {
		artistMBIDs, err := c.metadata.ArtistMBIDsForRecording(ctx, *listen.RecordingMBID)
		if err != nil {
			if !musicbrainzdb.IsNoData(err) {
				return err
			}
			// missing metadata: skip this derived step, block R continues.
		} else {
			sortedKey := entity.ArtistMBIDKey(artistMBIDs)
			if err := c.runArtistSubProtocol(ctx, tx, listen.Artist, sortedKey); err != nil {
				return err
			}
		}
	}

	// Derived release cluster: only when the listen names a release but
	// carries no release MBID of its own.
	if listen.HasRelease() && listen.ReleaseMBID == nil {
		releases, err := c.metadata.ReleasesForRecording(ctx, *listen.RecordingMBID)
		if err != nil {
			if !musicbrainzdb.IsNoData(err) {
				return err
			}
		} else {
			for _, release := range releases {
				if release.Name != listen.Release {
					continue
				}
				if err := c.runReleaseSubProtocol(ctx, tx, listen.Release, release.MBID); err != nil {
					return err
				}
			}
		}
	}

	return tx.Commit(ctx)
}

// runBlockA implements the artist-credit block in its own transaction.
func (c *Clusterer) runBlockA(ctx context.Context, artistText string, artistMBIDs []uuid.UUID) error {
	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	sortedKey := entity.ArtistMBIDKey(artistMBIDs)
	if err := c.runArtistSubProtocol(ctx, tx, artistText, sortedKey); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (c *Clusterer) runArtistSubProtocol(ctx context.Context, tx pgx.Tx, artistText string, sortedKey []uuid.UUID) error {
	msidA, err := c.canon.ArtistCreditMSID(ctx, artistText)
	if err != nil {
		return err
	}

	cluster, ok, err := c.store.LookupClusterByMBID(ctx, tx, entity.ArtistCredit, sortedKey)
	if err != nil {
		return err
	}
	if ok {
		return c.store.InsertMembership(ctx, tx, entity.ArtistCredit, cluster, []uuid.UUID{msidA})
	}

	if err := c.store.InsertMembership(ctx, tx, entity.ArtistCredit, msidA, []uuid.UUID{msidA}); err != nil {
		return err
	}
	return c.store.LinkMBID(ctx, tx, entity.ArtistCredit, msidA, sortedKey)
}

// runBlockRl implements the release block in its own transaction.
func (c *Clusterer) runBlockRl(ctx context.Context, releaseText string, releaseMBID uuid.UUID) error {
	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := c.runReleaseSubProtocol(ctx, tx, releaseText, releaseMBID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (c *Clusterer) runReleaseSubProtocol(ctx context.Context, tx pgx.Tx, releaseText string, releaseMBID uuid.UUID) error {
	mbidKey := []uuid.UUID{releaseMBID}

	msidRl, err := c.canon.ReleaseMSID(ctx, releaseText)
	if err != nil {
		return err
	}

	cluster, ok, err := c.store.LookupClusterByMBID(ctx, tx, entity.Release, mbidKey)
	if err != nil {
		return err
	}
	if ok {
		return c.store.InsertMembership(ctx, tx, entity.Release, cluster, []uuid.UUID{msidRl})
	}

	if err := c.store.InsertMembership(ctx, tx, entity.Release, msidRl, []uuid.UUID{msidRl}); err != nil {
		return err
	}
	return c.store.LinkMBID(ctx, tx, entity.Release, msidRl, mbidKey)
}
