// Package musicbrainzdb implements entity.MetadataClient as a read-only
// pgx connection against a MusicBrainz replica schema, grounded on the
// original implementation's direct use of brainzutils.musicbrainz_db
// (a plain database connection, not an HTTP API) rather than a network
// client.
package musicbrainzdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metabrainz/messybrainz-clusterer/internal/entity"
	"github.com/pannpers/go-apperr/apperr"
	"github.com/pannpers/go-apperr/apperr/codes"
	"github.com/pannpers/go-logging/logging"
)

// ErrNoData is returned when a recording MBID has no rows of the
// requested kind in the replica. The online clusterer treats this as
// "missing metadata" and swallows it at the block boundary, matching the
// original's NoDataFoundException.
var ErrNoData = apperr.New(codes.NotFound, "no musicbrainz data for recording")

// Client queries a reduced MusicBrainz schema (recording, artist_credit_name,
// artist, release, medium, track) for just the columns the clusterer needs.
type Client struct {
	pool   *pgxpool.Pool
	logger *logging.Logger
}

// New creates a Client from a DSN.
func New(ctx context.Context, dsn string, logger *logging.Logger) (*Client, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create musicbrainz db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping musicbrainz db: %w", err)
	}
	return &Client{pool: pool, logger: logger}, nil
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	c.pool.Close()
	return nil
}

// ArtistMBIDsForRecording returns the artist MBIDs forming the artist
// credit of a recording, in artist-credit position order.
func (c *Client) ArtistMBIDsForRecording(ctx context.Context, recordingMBID uuid.UUID) ([]uuid.UUID, error) {
	const query = `
		SELECT a.gid
		FROM recording r
		JOIN artist_credit_name acn ON acn.artist_credit = r.artist_credit
		JOIN artist a ON a.id = acn.artist
		WHERE r.gid = $1
		ORDER BY acn.position`

	rows, err := c.pool.Query(ctx, query, recordingMBID)
	if err != nil {
		return nil, fmt.Errorf("query artist credit for recording: %w", err)
	}
	defer rows.Close()

	var mbids []uuid.UUID
	for rows.Next() {
		var mbid uuid.UUID
		if err := rows.Scan(&mbid); err != nil {
			return nil, fmt.Errorf("scan artist mbid: %w", err)
		}
		mbids = append(mbids, mbid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artist mbids: %w", err)
	}

	if len(mbids) == 0 {
		return nil, ErrNoData
	}
	return mbids, nil
}

// ReleasesForRecording returns the candidate releases a recording appears
// on via its tracks.
func (c *Client) ReleasesForRecording(ctx context.Context, recordingMBID uuid.UUID) ([]entity.ReleaseInfo, error) {
	const query = `
		SELECT DISTINCT rel.gid, rel.name
		FROM recording r
		JOIN track t ON t.recording = r.id
		JOIN medium m ON m.id = t.medium
		JOIN release rel ON rel.id = m.release
		WHERE r.gid = $1`

	rows, err := c.pool.Query(ctx, query, recordingMBID)
	if err != nil {
		return nil, fmt.Errorf("query releases for recording: %w", err)
	}
	defer rows.Close()

	var releases []entity.ReleaseInfo
	for rows.Next() {
		var info entity.ReleaseInfo
		if err := rows.Scan(&info.MBID, &info.Name); err != nil {
			return nil, fmt.Errorf("scan release info: %w", err)
		}
		releases = append(releases, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate releases: %w", err)
	}

	if len(releases) == 0 {
		return nil, ErrNoData
	}
	return releases, nil
}

// IsNoData reports whether err is, or wraps, ErrNoData or pgx.ErrNoRows.
func IsNoData(err error) bool {
	return errors.Is(err, ErrNoData) || errors.Is(err, pgx.ErrNoRows)
}

var _ entity.MetadataClient = (*Client)(nil)
