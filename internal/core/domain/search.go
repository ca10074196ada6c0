package domain

import "sort"

// MatchedBy tags which retrieval path produced a result.
type MatchedBy string

// Result provenance values.
const (
	MatchedSemantic     MatchedBy = "semantic"
	MatchedMetadata     MatchedBy = "metadata"
	MatchedSemanticMeta MatchedBy = "semantic+metadata"
)

// NoPosition marks a result with no winning chunk position. It sorts
// after every real position.
const NoPosition = -1

// RankedHit is a merged, document-level retrieval result.
type RankedHit struct {
	DocID        string `json:"doc_id"`
	RelativePath string `json:"relative_path"`
	AbsolutePath string `json:"absolute_path"`

	// Position is the winning chunk's position, or NoPosition for
	// metadata-only hits.
	Position int `json:"position"`

	// Text is the winning chunk text, or a content preview for
	// metadata-only hits.
	Text string `json:"text"`

	// SemanticScore is the best chunk score observed for the document.
	SemanticScore float64 `json:"semantic_score"`

	// MetadataScore is the highest metadata condition count observed.
	MetadataScore int `json:"metadata_score"`
}

// CombinedScore weights semantic over metadata relevance. Semantic
// dominates ordering; metadata breaks ties and admits metadata-only
// hits. The weighting is a pinned heuristic default.
func (h RankedHit) CombinedScore() float64 {
	return h.SemanticScore*100 + float64(h.MetadataScore)*10
}

// MatchedBy reports the result's retrieval provenance.
func (h RankedHit) MatchedBy() MatchedBy {
	switch {
	case h.SemanticScore > 0 && h.MetadataScore > 0:
		return MatchedSemanticMeta
	case h.SemanticScore > 0:
		return MatchedSemantic
	default:
		return MatchedMetadata
	}
}

// RankHits orders merged results by combined score desc, semantic score
// desc, metadata score desc, chunk position asc (missing last), then
// relative path asc, and truncates to limit.
func RankHits(hits []RankedHit, limit int) []RankedHit {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if ac, bc := a.CombinedScore(), b.CombinedScore(); ac != bc {
			return ac > bc
		}
		if a.SemanticScore != b.SemanticScore {
			return a.SemanticScore > b.SemanticScore
		}
		if a.MetadataScore != b.MetadataScore {
			return a.MetadataScore > b.MetadataScore
		}
		if ap, bp := positionKey(a.Position), positionKey(b.Position); ap != bp {
			return ap < bp
		}
		return a.RelativePath < b.RelativePath
	})

	if limit < 1 {
		limit = 1
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func positionKey(pos int) int {
	if pos < 0 {
		return int(^uint(0) >> 1) // missing positions sort last
	}
	return pos
}
