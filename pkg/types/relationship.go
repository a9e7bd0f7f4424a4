package types

import "sort"

// RelationDefault is the fallback relationship used when classification
// fails, the LLM response is unrecognized, or no provider is configured.
const RelationDefault = "related_to"

// Relationship category names. Category lookup is a pure function of the
// relationship type; see RelationshipCategory.
const (
	CategoryCausal     = "causal"
	CategoryTemporal   = "temporal"
	CategoryStructural = "structural"
	CategorySimilarity = "similarity"
	CategoryFunctional = "functional"
)

// relationshipCategories is the closed, versioned vocabulary of relationship
// types grouped into categories. Adding a type here is a vocabulary version
// bump: stored associations reference these strings directly.
var relationshipCategories = map[string]string{
	// Causal
	"causes":    CategoryCausal,
	"caused_by": CategoryCausal,
	"enables":   CategoryCausal,
	"prevents":  CategoryCausal,

	// Temporal
	"precedes":        CategoryTemporal,
	"follows":         CategoryTemporal,
	"concurrent_with": CategoryTemporal,

	// Structural
	"part_of":       CategoryStructural,
	"contains":      CategoryStructural,
	"built_upon_by": CategoryStructural,
	"derived_from":  CategoryStructural,

	// Similarity
	"similar_to":  CategorySimilarity,
	"related_to":  CategorySimilarity,
	"contradicts": CategorySimilarity,
	"duplicates":  CategorySimilarity,

	// Functional
	"solves":      CategoryFunctional,
	"solved_by":   CategoryFunctional,
	"replaces":    CategoryFunctional,
	"replaced_by": CategoryFunctional,
	"depends_on":  CategoryFunctional,
	"supports":    CategoryFunctional,
}

// IsKnownRelationship reports whether rel is in the vocabulary.
func IsKnownRelationship(rel string) bool {
	_, ok := relationshipCategories[rel]
	return ok
}

// RelationshipCategory returns the category a relationship type belongs to.
// The second return value is false for unknown types.
func RelationshipCategory(rel string) (string, bool) {
	cat, ok := relationshipCategories[rel]
	return cat, ok
}

// AllRelationships returns the full vocabulary in sorted order. The slice is
// freshly allocated on each call so callers may mutate it.
func AllRelationships() []string {
	rels := make([]string, 0, len(relationshipCategories))
	for rel := range relationshipCategories {
		rels = append(rels, rel)
	}
	sort.Strings(rels)
	return rels
}
