package canonicalize_test

import (
	"context"
	"testing"

	"github.com/metabrainz/messybrainz-clusterer/internal/canonicalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizer_RecordingMSID_Idempotent(t *testing.T) {
	c := canonicalize.New()
	ctx := context.Background()

	m1, err := c.RecordingMSID(ctx, "A", "T", "")
	require.NoError(t, err)

	m2, err := c.RecordingMSID(ctx, "A", "T", "")
	require.NoError(t, err)

	assert.Equal(t, m1, m2)
}

func TestCanonicalizer_RecordingMSID_TrailingSpaceDiffers(t *testing.T) {
	c := canonicalize.New()
	ctx := context.Background()

	m1, err := c.RecordingMSID(ctx, "A", "T", "")
	require.NoError(t, err)

	m2, err := c.RecordingMSID(ctx, "A", "T ", "")
	require.NoError(t, err)

	assert.NotEqual(t, m1, m2)
}

func TestCanonicalizer_ArtistCreditMSID_Idempotent(t *testing.T) {
	c := canonicalize.New()
	ctx := context.Background()

	m1, err := c.ArtistCreditMSID(ctx, "X & Y")
	require.NoError(t, err)

	m2, err := c.ArtistCreditMSID(ctx, "X & Y")
	require.NoError(t, err)

	assert.Equal(t, m1, m2)
}

func TestCanonicalizer_DistinctKindsDoNotCollide(t *testing.T) {
	c := canonicalize.New()
	ctx := context.Background()

	recording, err := c.RecordingMSID(ctx, "Same", "", "")
	require.NoError(t, err)

	release, err := c.ReleaseMSID(ctx, "Same")
	require.NoError(t, err)

	assert.NotEqual(t, recording, release)
}
