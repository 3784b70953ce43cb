package clustering_test

import (
	"context"

	"github.com/google/uuid"
	"github.com/metabrainz/messybrainz-clusterer/internal/entity"
	"github.com/metabrainz/messybrainz-clusterer/internal/infrastructure/musicbrainzdb"
)

// fakeMetadataClient is an in-memory entity.MetadataClient double: the
// online clusterer's derived-cluster steps are exercised against fixed
// recording-MBID -> metadata maps instead of a live MusicBrainz replica.
type fakeMetadataClient struct {
	artists  map[uuid.UUID][]uuid.UUID
	releases map[uuid.UUID][]entity.ReleaseInfo
}

func newFakeMetadataClient() *fakeMetadataClient {
	return &fakeMetadataClient{
		artists:  make(map[uuid.UUID][]uuid.UUID),
		releases: make(map[uuid.UUID][]entity.ReleaseInfo),
	}
}

func (f *fakeMetadataClient) ArtistMBIDsForRecording(_ context.Context, recordingMBID uuid.UUID) ([]uuid.UUID, error) {
	mbids, ok := f.artists[recordingMBID]
	if !ok {
		return nil, musicbrainzdb.ErrNoData
	}
	return mbids, nil
}

func (f *fakeMetadataClient) ReleasesForRecording(_ context.Context, recordingMBID uuid.UUID) ([]entity.ReleaseInfo, error) {
	releases, ok := f.releases[recordingMBID]
	if !ok {
		return nil, musicbrainzdb.ErrNoData
	}
	return releases, nil
}

var _ entity.MetadataClient = (*fakeMetadataClient)(nil)
