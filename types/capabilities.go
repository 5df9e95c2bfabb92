package types

// ------------------------
// Capability addressing & kinds
// ------------------------

type Kind string

const (
	KindEncoder Kind = "encoder"
)

// CapabilityAddress identifies a public capability on the bus.
type CapabilityAddress struct {
	Domain string `json:"domain"` // e.g. "input"
	Kind   Kind   `json:"kind"`
	Name   string `json:"name"`
}

// Info envelope each capability exposes (retained).
type Info struct {
	SchemaVersion int    `json:"schema_version"`
	Driver        string `json:"driver"`
	Detail        any    `json:"detail,omitempty"`
}
