// Package emotion maps raw classifier output onto the seven facial-expression labels.
package emotion

import (
	"fmt"
	"math"
)

// Labels is the class order the model was trained with. Score i belongs to Labels[i].
var Labels = [...]string{"Angry", "Disgust", "Fear", "Happy", "Sad", "Surprise", "Neutral"}

// NumClasses is the length of the score vector the model must emit.
const NumClasses = len(Labels)

// Scores maps each label to its confidence.
type Scores map[string]float32

// Map pairs scores with Labels by position. The vector must have exactly NumClasses
// finite entries.
func Map(scores []float32) (Scores, error) {
	if len(scores) != NumClasses {
		return nil, fmt.Errorf("expected %d scores, got %d", NumClasses, len(scores))
	}
	out := make(Scores, NumClasses)
	for i, score := range scores {
		f := float64(score)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("score for %s is not finite: %v", Labels[i], score)
		}
		out[Labels[i]] = score
	}
	return out, nil
}

// Top returns the label with the highest score. Ties resolve to the earlier label.
func (s Scores) Top() (string, float32) {
	best, bestScore := "", float32(math.Inf(-1))
	for _, label := range Labels {
		score, ok := s[label]
		if ok && score > bestScore {
			best, bestScore = label, score
		}
	}
	return best, bestScore
}

// MatchesLabels reports whether classes lists exactly Labels in the same order.
func MatchesLabels(classes []string) bool {
	if len(classes) != NumClasses {
		return false
	}
	for i, class := range classes {
		if class != Labels[i] {
			return false
		}
	}
	return true
}
