package types

import "time"

// ResolutionStrategy is the caller's decision for how a contradiction
// between two memories should be settled.
type ResolutionStrategy string

const (
	ResolutionKeepA    ResolutionStrategy = "keep_a"
	ResolutionKeepB    ResolutionStrategy = "keep_b"
	ResolutionKeepBoth ResolutionStrategy = "keep_both"
	ResolutionMerge    ResolutionStrategy = "merge"
)

// IsValidResolution reports whether s is one of the accepted strategies.
func IsValidResolution(s ResolutionStrategy) bool {
	switch s {
	case ResolutionKeepA, ResolutionKeepB, ResolutionKeepBoth, ResolutionMerge:
		return true
	}
	return false
}

// ContradictionRecord tracks a detected conflict between two memories.
// Resolution is a one-shot transition: once Resolution is set the record is
// closed and further resolve attempts are rejected. Resolving a record does
// not itself mutate the referenced memories; that is left to the caller.
type ContradictionRecord struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	MemoryAID   string `json:"memory_a_id"`
	MemoryBID   string `json:"memory_b_id"`

	ContradictionType string  `json:"contradiction_type"` // e.g. "negation"
	Confidence        float64 `json:"confidence"`         // 0.0-1.0
	DetectionMethod   string  `json:"detection_method"`   // e.g. "negation_pattern"

	Resolution    ResolutionStrategy `json:"resolution,omitempty"`
	MergedContent string             `json:"merged_content,omitempty"`

	DetectedAt time.Time  `json:"detected_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Resolved reports whether the record has already been settled.
func (r *ContradictionRecord) Resolved() bool {
	return r.Resolution != ""
}
