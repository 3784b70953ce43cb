// Package canonicalize mints MessyBrainz IDs (MSIDs) from normalized text
// tuples.
//
// The clustering engine treats MSID minting as an opaque collaborator
// (component A of the specification): given the same normalized tuple it
// must always return the same UUID. This implementation satisfies that
// contract with name-based UUIDs (RFC 4122 version 5) instead of a
// database-backed sequence, so the whole ingest-to-cluster pipeline can run
// without a separate minting service.
package canonicalize

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Namespace UUIDs, one per entity kind, so that identical text normalizes to
// the same MSID within a kind but two different kinds never collide even on
// identical input text.
var (
	namespaceRecording    = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	namespaceArtistCredit = uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")
	namespaceRelease      = uuid.MustParse("6ba7b812-9dad-11d1-80b4-00c04fd430c8")
)

// Canonicalizer mints MSIDs via uuid.NewSHA1. It holds no state and is safe
// for concurrent use by multiple workers.
type Canonicalizer struct{}

// New creates a Canonicalizer.
func New() *Canonicalizer {
	return &Canonicalizer{}
}

// RecordingMSID canonicalizes an (artist, title, release) tuple. Fields are
// compared byte-for-byte with no trimming or case folding: "T" and "T " mint
// distinct MSIDs, matching the specification's S1/S2 scenarios where a
// trailing space on the title changes the canonical MSID.
func (c *Canonicalizer) RecordingMSID(_ context.Context, artist, title, release string) (uuid.UUID, error) {
	return nameBasedID(namespaceRecording, joinTuple(artist, title, release)), nil
}

// ArtistCreditMSID canonicalizes an artist-credit text.
func (c *Canonicalizer) ArtistCreditMSID(_ context.Context, artist string) (uuid.UUID, error) {
	return nameBasedID(namespaceArtistCredit, joinTuple(artist)), nil
}

// ReleaseMSID canonicalizes a release title.
func (c *Canonicalizer) ReleaseMSID(_ context.Context, release string) (uuid.UUID, error) {
	return nameBasedID(namespaceRelease, joinTuple(release)), nil
}

func joinTuple(fields ...string) string {
	return strings.Join(fields, "\x1f")
}

func nameBasedID(namespace uuid.UUID, name string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(name))
}
