package driven

import (
	"context"

	"github.com/custodia-labs/corpora-cli/internal/core/domain"
)

// EntityExtractor returns typed text spans from a document. This is an
// optional, LLM-backed service; any failure degrades to the profile's
// default values rather than propagating.
type EntityExtractor interface {
	// Extract returns the entities found in text, guided by the
	// profile's prompt.
	Extract(ctx context.Context, text, prompt string) ([]domain.Entity, error)
}

// ProfileSample is one parsed document excerpt given to profile
// auto-discovery.
type ProfileSample struct {
	Filename string
	Snippet  string
}

// ProfileGenerator proposes a metadata profile tailored to a corpus
// sample. Optional; failures fall back to the built-in default profile.
type ProfileGenerator interface {
	// GenerateProfile asks an external model for a profile proposal.
	// The result still passes through domain profile validation.
	GenerateProfile(ctx context.Context, samples []ProfileSample) (*domain.MetadataProfile, error)
}
