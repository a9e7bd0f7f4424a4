package types

import "time"

// Association is a directed, typed edge between two memories. The
// relationship string is drawn from the vocabulary in relationship.go;
// unknown strings are rejected by the storage layer. Multiple edge types may
// exist between the same pair of memories.
type Association struct {
	ID           string    `json:"id"`
	SourceID     string    `json:"source_id"`
	TargetID     string    `json:"target_id"`
	Relationship string    `json:"relationship"`
	Strength     float64   `json:"strength"` // 0.0-1.0
	CreatedAt    time.Time `json:"created_at"`
}
