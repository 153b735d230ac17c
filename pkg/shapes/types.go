package shapes

import (
	"context"
)

// Shape is one catalog entry for a compute shape. Immutable reference data
// owned by the catalog, read-only to the engine.
type Shape struct {
	Name        string  `json:"name" yaml:"name"`
	Cloud       string  `json:"cloud" yaml:"cloud"`
	CPU         float64 `json:"cpu" yaml:"cpu"`
	MemoryGB    float64 `json:"memoryGb" yaml:"memoryGb"`
	NetworkGbps float64 `json:"networkGbps" yaml:"networkGbps"`
	IOPS        float64 `json:"iops" yaml:"iops"`
	FamilyType  string  `json:"familyType" yaml:"familyType"`
	Series      string  `json:"series" yaml:"series"`
}

// IsZero reports whether s is the empty shape.
func (s Shape) IsZero() bool { return s.Name == "" }

// Candidate is a Shape decorated with a fit probability and, once pricing has
// run, an hourly price. Created fresh per recommendation run, never persisted
// directly.
type Candidate struct {
	Shape
	Probability float64 `json:"probability"`
	PriceUSD    float64 `json:"priceUsd,omitempty"`
}

// Equal compares the whole candidate value. Dedup in the resize matcher is on
// the full value, not the name: two proposals with the same name but different
// probabilities are distinct.
func (c Candidate) Equal(other Candidate) bool { return c == other }

// Catalog exposes the shape catalog to the engine.
type Catalog interface {
	// List returns all shapes for a cloud and resource type.
	List(ctx context.Context, cloud, resourceType string) ([]Shape, error)
	// Get returns the shape with the given name.
	Get(ctx context.Context, name string) (Shape, error)
}
