package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/hray3182/Timeline/internal/models"
)

// Dimension must match the vector(384) column of task_log.
const Dimension = 384

const (
	placeholderDescription = "no description"
	placeholderCategory    = "uncategorized"
)

var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrZeroVector        = errors.New("embedding has zero norm")
)

// Embedder turns text into a vector. Implementations may be slow.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator builds the embedding input for an event, runs the embedder and
// enforces the dimension and normalization contract.
type Generator struct {
	embedder Embedder
}

func NewGenerator(embedder Embedder) *Generator {
	return &Generator{embedder: embedder}
}

// Text returns the embedding input for an event
func Text(e *models.Event) string {
	desc := strings.TrimSpace(e.ExtendedProps.Description)
	if desc == "" {
		desc = placeholderDescription
	}
	category := strings.TrimSpace(e.ExtendedProps.Category)
	if category == "" {
		category = placeholderCategory
	}
	return strings.TrimSpace(e.Title) + " " + desc + " " + category
}

// Generate returns a unit-length vector of exactly Dimension components.
func (g *Generator) Generate(ctx context.Context, e *models.Event) ([]float32, error) {
	vec, err := g.embedder.Embed(ctx, Text(e))
	if err != nil {
		return nil, fmt.Errorf("failed to embed event: %w", err)
	}
	if len(vec) != Dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), Dimension)
	}
	return Normalize(vec)
}

// Normalize scales vec to unit L2 norm, returning a new slice.
func Normalize(vec []float32) ([]float32, error) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, ErrZeroVector
	}
	norm := math.Sqrt(sum)

	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out, nil
}
