package embedding

import (
	"math"
	"sort"
)

// NoFaceDistance is the default distance assigned to gallery entries with no
// embeddings. Unit vectors are at most 4.0 apart (squared), so this ranks
// behind every real face.
const NoFaceDistance float32 = math.MaxFloat32

// Outcome tells a real distance apart from the no-face placeholder.
type Outcome int

const (
	// Matched means Distance is the closest face's real distance.
	Matched Outcome = iota
	// NoFace means the entry had no embeddings; Distance is the placeholder.
	NoFace
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case NoFace:
		return "no-face"
	default:
		return "unknown"
	}
}

// GalleryEntry is one image and the embeddings of the faces found in it.
type GalleryEntry struct {
	Path       string
	Embeddings []Vector
}

// MatchResult is a gallery entry's distance to the query.
type MatchResult struct {
	Path     string
	Distance float32
	Faces    int
	Outcome  Outcome
	// Within is set when a threshold is configured and Distance is at or below it.
	Within bool
}

// MatcherConfig configures a Matcher.
type MatcherConfig struct {
	// NoFaceDistance is assigned to entries without embeddings. Zero means
	// the package default.
	NoFaceDistance float32
	// Threshold marks results as Within when > 0.
	Threshold float32
}

// Matcher compares a query embedding against a gallery.
type Matcher struct {
	noFace    float32
	threshold float32
}

// NewMatcher creates a matcher.
func NewMatcher(cfg MatcherConfig) *Matcher {
	noFace := cfg.NoFaceDistance
	if noFace == 0 {
		noFace = NoFaceDistance
	}
	return &Matcher{noFace: noFace, threshold: cfg.Threshold}
}

// MatchGallery returns one result per entry, in gallery order. An image
// with several faces is represented by its closest face.
func (m *Matcher) MatchGallery(query Vector, gallery []GalleryEntry) []MatchResult {
	results := make([]MatchResult, len(gallery))
	for i, entry := range gallery {
		res := MatchResult{
			Path:     entry.Path,
			Faces:    len(entry.Embeddings),
			Distance: m.noFace,
			Outcome:  NoFace,
		}
		for _, e := range entry.Embeddings {
			d := Distance(query, e)
			if res.Outcome == NoFace || d < res.Distance {
				res.Distance = d
				res.Outcome = Matched
			}
		}
		if res.Outcome == Matched && m.threshold > 0 {
			res.Within = res.Distance <= m.threshold
		}
		results[i] = res
	}
	return results
}

// Rank sorts results by ascending distance in place. Ties keep their order.
func Rank(results []MatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
}
