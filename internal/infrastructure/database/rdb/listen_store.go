package rdb

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/metabrainz/messybrainz-clusterer/internal/entity"
)

// ListenStore is the pgx-backed implementation of entity.ListenStore.
type ListenStore struct{}

// NewListenStore creates a ListenStore.
func NewListenStore() *ListenStore {
	return &ListenStore{}
}

func (s *ListenStore) InsertListen(ctx context.Context, tx pgx.Tx, recordingMSID, artistCreditMSID uuid.UUID, releaseMSID *uuid.UUID, listen entity.Listen, body []byte) error {
	const query = `
		INSERT INTO listens
			(recording_msid, artist_credit_msid, release_msid, artist_credit, title, release, recording_mbid, release_mbid, artist_mbids, body)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := tx.Exec(ctx, query,
		recordingMSID,
		artistCreditMSID,
		releaseMSID,
		listen.Artist,
		listen.Title,
		listen.Release,
		listen.RecordingMBID,
		listen.ReleaseMBID,
		entity.ArtistMBIDKey(uuidSliceOrEmpty(listen.ArtistMBIDs)),
		body,
	)
	if err != nil {
		return toAppErr(err, "insert listen")
	}
	return nil
}

func uuidSliceOrEmpty(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}

var _ entity.ListenStore = (*ListenStore)(nil)
