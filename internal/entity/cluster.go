package entity

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ClusterStore exposes the primitive cluster-store operations for one entity
// Kind, each participating in the caller's transaction. Implementations must
// make insert_membership and link_mbid upserts ("ON CONFLICT DO NOTHING"):
// duplicate inserts are no-ops, not errors, so the online clusterer and the
// batch rebuilder never need to special-case redelivery.
//
// ArtistCredit MBID keys are passed as the sorted sequence returned by
// ArtistMBIDKey; Recording and Release keys are passed as a single-element
// slice. Comparison for ArtistCredit is always whole-sequence equality.
type ClusterStore interface {
	// LookupClusterByMBID reads the redirect relation. ok is false when no
	// redirect row exists for mbidKey.
	LookupClusterByMBID(ctx context.Context, tx pgx.Tx, kind Kind, mbidKey []uuid.UUID) (clusterID uuid.UUID, ok bool, err error)

	// LookupClusterByMSID reads the membership relation for a single MSID.
	LookupClusterByMSID(ctx context.Context, tx pgx.Tx, kind Kind, gid uuid.UUID) (clusterID uuid.UUID, ok bool, err error)

	// InsertMembership upserts (clusterID, gid) for every gid. Duplicate
	// pairs are no-ops.
	InsertMembership(ctx context.Context, tx pgx.Tx, kind Kind, clusterID uuid.UUID, gids []uuid.UUID) error

	// LinkMBID upserts (clusterID, mbidKey). Duplicate pairs are no-ops.
	LinkMBID(ctx context.Context, tx pgx.Tx, kind Kind, clusterID uuid.UUID, mbidKey []uuid.UUID) error

	// FetchUnclusteredMBIDKeys returns every distinct MBID key present in the
	// listen store whose associated MSIDs are not yet members of any
	// cluster row.
	FetchUnclusteredMBIDKeys(ctx context.Context, tx pgx.Tx, kind Kind) ([][]uuid.UUID, error)

	// FetchUnclusteredGIDsFor returns MSIDs that canonicalize from listens
	// bearing mbidKey and are not yet in any cluster.
	FetchUnclusteredGIDsFor(ctx context.Context, tx pgx.Tx, kind Kind, mbidKey []uuid.UUID) ([]uuid.UUID, error)

	// FetchMBIDKeysLeftOver returns, after the without-anomalies pass, MBID
	// keys whose MSIDs have all been placed into clusters yet no redirect
	// row exists for the key.
	FetchMBIDKeysLeftOver(ctx context.Context, tx pgx.Tx, kind Kind) ([][]uuid.UUID, error)

	// GIDsForMBIDKey returns the distinct MSIDs that canonicalize from
	// listens bearing mbidKey, regardless of cluster membership. Used by
	// the anomaly phase to discover which clusters an orphaned MBID key
	// already landed in.
	GIDsForMBIDKey(ctx context.Context, tx pgx.Tx, kind Kind, mbidKey []uuid.UUID) ([]uuid.UUID, error)

	// Truncate clears membership and redirect rows for kind.
	Truncate(ctx context.Context, tx pgx.Tx, kind Kind) error
}

// Canonicalizer mints the stable internal identifier (MSID) for a normalized
// text tuple. Implementations must be idempotent: identical input always
// canonicalizes to the same UUID.
type Canonicalizer interface {
	// RecordingMSID canonicalizes an (artist, title, release) tuple into a
	// recording MSID.
	RecordingMSID(ctx context.Context, artist, title, release string) (uuid.UUID, error)
	// ArtistCreditMSID canonicalizes an artist-credit text into an MSID.
	ArtistCreditMSID(ctx context.Context, artist string) (uuid.UUID, error)
	// ReleaseMSID canonicalizes a release title into an MSID.
	ReleaseMSID(ctx context.Context, release string) (uuid.UUID, error)
}

// ListenStore archives each ingested listen and its derived MSIDs. The
// clusterer records a listen before clustering it so the batch rebuilder has
// a durable source of (text, MBID) associations to replay — one per entity
// kind, since recording, artist-credit, and release MSIDs each come from a
// distinct canonicalizer namespace and must never be confused with one
// another.
type ListenStore interface {
	// InsertListen archives one listen, keyed by its three derived MSIDs.
	// releaseMSID is nil when the listen names no release.
	InsertListen(ctx context.Context, tx pgx.Tx, recordingMSID, artistCreditMSID uuid.UUID, releaseMSID *uuid.UUID, listen Listen, body []byte) error
}

// ReleaseInfo is one candidate release a recording appears on, as reported
// by the MusicBrainz metadata client.
type ReleaseInfo struct {
	MBID uuid.UUID
	Name string
}

// MetadataClient is the read-only MusicBrainz metadata collaborator. It
// returns ErrNoData when the recording MBID is unknown or has no data of the
// requested kind; the online clusterer treats that as "missing metadata" and
// swallows it at the block boundary.
type MetadataClient interface {
	// ArtistMBIDsForRecording returns the artist MBIDs forming the artist
	// credit of a recording.
	ArtistMBIDsForRecording(ctx context.Context, recordingMBID uuid.UUID) ([]uuid.UUID, error)
	// ReleasesForRecording returns the candidate releases a recording
	// appears on.
	ReleasesForRecording(ctx context.Context, recordingMBID uuid.UUID) ([]ReleaseInfo, error)
}
