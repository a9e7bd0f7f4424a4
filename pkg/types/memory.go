// Package types defines the core data structures for the Engram memory
// system: memories, associations, contradiction records, workspaces, and the
// relationship vocabulary used to classify links between memories.
package types

import "time"

// MemoryType classifies a memory by how it was acquired and how long it
// should live.
type MemoryType string

const (
	// TypeSemantic is general knowledge: facts, preferences, concepts.
	TypeSemantic MemoryType = "semantic"

	// TypeEpisodic is a record of a specific event or interaction.
	TypeEpisodic MemoryType = "episodic"

	// TypeWorking is short-lived context tied to an active session.
	TypeWorking MemoryType = "working"

	// TypeProcedural is knowledge about how to perform a task.
	TypeProcedural MemoryType = "procedural"
)

// MemorySubtype refines the memory type with a functional role.
type MemorySubtype string

const (
	SubtypePreference MemorySubtype = "preference"
	SubtypeProblem    MemorySubtype = "problem"
	SubtypeSolution   MemorySubtype = "solution"
	SubtypeDecision   MemorySubtype = "decision"
	SubtypeFact       MemorySubtype = "fact"
	SubtypeInsight    MemorySubtype = "insight"
)

// MemoryStatus represents the lifecycle status of a memory.
// Valid transitions: active → archived → (active), and active/archived →
// deleted. Deleted is terminal and soft: the row is retained until a hard
// delete removes it.
type MemoryStatus string

const (
	StatusActive   MemoryStatus = "active"
	StatusArchived MemoryStatus = "archived"
	StatusDeleted  MemoryStatus = "deleted"
)

// IsValidStatusTransition reports whether a memory may move from one status
// to another. Deleted is terminal.
func IsValidStatusTransition(from, to MemoryStatus) bool {
	switch from {
	case StatusActive:
		return to == StatusArchived || to == StatusDeleted
	case StatusArchived:
		return to == StatusActive || to == StatusDeleted
	default:
		return false
	}
}

// Memory is a single stored knowledge unit. Memories are owned by exactly
// one workspace and carry a vector embedding for semantic search, a content
// hash for deduplication, and optional derived summary tiers.
type Memory struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	TenantID    string `json:"tenant_id"`

	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"` // SHA-256 of normalized content
	Embedding   []float32 `json:"embedding,omitempty"`

	Type    MemoryType    `json:"type"`
	Subtype MemorySubtype `json:"subtype,omitempty"`
	Status  MemoryStatus  `json:"status"`

	Pinned     bool     `json:"pinned"`
	Importance float64  `json:"importance"` // 0.0-1.0
	Tags       []string `json:"tags,omitempty"`

	// Derived summary tiers. Empty until the tiering service has run.
	Abstract string `json:"abstract,omitempty"` // short tier (~100 chars)
	Overview string `json:"overview,omitempty"` // long tier (~500 chars)

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	// Access tracking, bumped on recall.
	AccessCount    int        `json:"access_count"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
}

// Workspace is the isolation boundary for memories within a tenant.
type Workspace struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenant_id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Settings    map[string]string `json:"settings,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Reserved identifiers. GlobalWorkspaceID names the shared cross-workspace
// pool that every workspace's recall reads from unless explicitly excluded.
const (
	GlobalWorkspaceID = "_global"
	DefaultTenantID   = "_default"
)

// WorkingMemoryEntry is ephemeral keyed context scoped to a session with a
// TTL. Expired entries are invisible to reads and purged lazily.
type WorkingMemoryEntry struct {
	WorkspaceID string    `json:"workspace_id"`
	SessionID   string    `json:"session_id"`
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	ExpiresAt   time.Time `json:"expires_at"`
}
