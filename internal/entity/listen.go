// Package entity defines the core domain types and repository contracts for
// the clustering engine: listens, cluster stores, and the external
// collaborators (canonicalizer, MusicBrainz metadata) the clusterer depends
// on.
package entity

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Kind identifies one of the three clustered entity types. Each kind has its
// own pair of cluster/redirect tables, but the store operations are written
// once and parameterized by Kind.
type Kind string

const (
	Recording    Kind = "recording"
	ArtistCredit Kind = "artist_credit"
	Release      Kind = "release"
)

// Listen is the normalized, typed form of one ingest message. The wire
// format is an untyped JSON object; Listen models its recognized fields as
// optional values instead of map lookups, per design note 9 of the
// specification this package implements.
type Listen struct {
	Artist        string
	Title         string
	Release       string
	RecordingMBID *uuid.UUID
	ArtistMBIDs   []uuid.UUID
	ReleaseMBID   *uuid.UUID
}

// HasRelease reports whether the listen carries a release title.
func (l Listen) HasRelease() bool {
	return l.Release != ""
}

// wireListen is the untyped JSON shape accepted on the ingest exchange.
// Unknown fields are ignored by encoding/json by default.
type wireListen struct {
	Artist        string      `json:"artist"`
	Title         string      `json:"title"`
	Release       string      `json:"release"`
	RecordingMBID *uuid.UUID  `json:"recording_mbid"`
	ArtistMBIDs   []uuid.UUID `json:"artist_mbids"`
	ReleaseMBID   *uuid.UUID  `json:"release_mbid"`
}

// ParseListen decodes one ingest message. A missing artist_mbids key
// produces a nil slice (field absent); a present-but-empty array produces a
// non-nil empty slice (field present) — callers that branch on presence,
// not just non-emptiness, rely on this distinction (specification §4.D
// blocks R and A).
//
// title is not required here: it only matters for computing the recording
// MSID (blocks R's membership key), so a listen that omits it is still a
// valid artist-only message for block A (specification §4.D).
func ParseListen(body []byte) (Listen, error) {
	var w wireListen
	if err := json.Unmarshal(body, &w); err != nil {
		return Listen{}, fmt.Errorf("decode listen: %w", err)
	}

	if w.Artist == "" {
		return Listen{}, fmt.Errorf("decode listen: missing required field %q", "artist")
	}

	return Listen{
		Artist:        w.Artist,
		Title:         w.Title,
		Release:       w.Release,
		RecordingMBID: w.RecordingMBID,
		ArtistMBIDs:   w.ArtistMBIDs,
		ReleaseMBID:   w.ReleaseMBID,
	}, nil
}

// ArtistMBIDKey returns the sorted artist MBID sequence that forms the
// artist-credit redirect key. Two credits are equal iff their sorted
// sequences are identical, so callers must always go through this method
// rather than comparing ArtistMBIDs directly.
func ArtistMBIDKey(mbids []uuid.UUID) []uuid.UUID {
	sorted := make([]uuid.UUID, len(mbids))
	copy(sorted, mbids)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})
	return sorted
}
