package entity_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/metabrainz/messybrainz-clusterer/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseListen_MinimalFields(t *testing.T) {
	listen, err := entity.ParseListen([]byte(`{"artist":"A","title":"T"}`))
	require.NoError(t, err)

	assert.Equal(t, "A", listen.Artist)
	assert.Equal(t, "T", listen.Title)
	assert.Nil(t, listen.RecordingMBID)
	assert.Nil(t, listen.ArtistMBIDs)
	assert.False(t, listen.HasRelease())
}

func TestParseListen_ArtistMBIDsPresenceVsAbsence(t *testing.T) {
	absent, err := entity.ParseListen([]byte(`{"artist":"A","title":"T"}`))
	require.NoError(t, err)
	assert.Nil(t, absent.ArtistMBIDs)

	present, err := entity.ParseListen([]byte(`{"artist":"A","title":"T","artist_mbids":[]}`))
	require.NoError(t, err)
	assert.NotNil(t, present.ArtistMBIDs)
	assert.Empty(t, present.ArtistMBIDs)
}

func TestParseListen_MissingRequiredField(t *testing.T) {
	_, err := entity.ParseListen([]byte(`{"title":"T"}`))
	assert.Error(t, err)
}

// TestParseListen_TitleOptional locks in the literal artist-credit-only
// scenario: a message naming an artist and its MBIDs but no title or
// recording MBID is a valid block A message, not a parse error.
func TestParseListen_TitleOptional(t *testing.T) {
	listen, err := entity.ParseListen([]byte(`{"artist":"X & Y","artist_mbids":["11111111-1111-1111-1111-111111111111","22222222-2222-2222-2222-222222222222"]}`))
	require.NoError(t, err)

	assert.Equal(t, "X & Y", listen.Artist)
	assert.Equal(t, "", listen.Title)
	assert.Nil(t, listen.RecordingMBID)
	require.NotNil(t, listen.ArtistMBIDs)
	assert.Len(t, listen.ArtistMBIDs, 2)
}

func TestParseListen_UnknownFieldsIgnored(t *testing.T) {
	listen, err := entity.ParseListen([]byte(`{"artist":"A","title":"T","tracknumber":7}`))
	require.NoError(t, err)
	assert.Equal(t, "A", listen.Artist)
}

func TestArtistMBIDKey_OrderIndependent(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.Equal(t, entity.ArtistMBIDKey([]uuid.UUID{a, b}), entity.ArtistMBIDKey([]uuid.UUID{b, a}))
}
