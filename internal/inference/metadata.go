package inference

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/example/fer-service/internal/emotion"
	"github.com/example/fer-service/internal/imageprocessor"
)

// Metadata describes a model artifact. It is exported alongside the model at training time.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
}

// LoadMetadata reads and parses a metadata JSON file.
func LoadMetadata(path string) (*Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &meta, nil
}

// Validate checks that the artifact matches the labels and input frame this service uses.
// Absent fields are not checked.
func (m *Metadata) Validate() error {
	if len(m.Classes) > 0 && !emotion.MatchesLabels(m.Classes) {
		return fmt.Errorf("model classes %v do not match expected order %v", m.Classes, emotion.Labels)
	}
	if m.ImageSize != 0 && m.ImageSize != imageprocessor.Size {
		return fmt.Errorf("model expects %dpx frames, service produces %dpx", m.ImageSize, imageprocessor.Size)
	}
	if len(m.InputShape) > 0 {
		if err := checkShape("input", m.InputShape, imageprocessor.InputShape()); err != nil {
			return err
		}
	}
	if len(m.OutputShape) > 0 {
		if err := checkShape("output", m.OutputShape, outputShape()); err != nil {
			return err
		}
	}
	return nil
}

func outputShape() []int64 {
	return []int64{1, int64(emotion.NumClasses)}
}

// checkShape compares a reported shape against want. Non-positive dimensions are
// symbolic (dynamic batch and the like) and match anything.
func checkShape(kind string, got, want []int64) error {
	if len(got) != len(want) {
		return fmt.Errorf("model %s shape %v has rank %d, want %v", kind, got, len(got), want)
	}
	for i := range want {
		if got[i] > 0 && got[i] != want[i] {
			return fmt.Errorf("model %s shape %v incompatible with %v", kind, got, want)
		}
	}
	return nil
}
