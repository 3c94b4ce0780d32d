/**
 * Anomaly Scorer.
 *
 * Interface: score(features) -> {attack, confidence} or nil when no
 * model is loaded. Scoring runs concurrently with rule
 * evaluation for the same packet and never blocks on I/O.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package anomaly

import "github.com/kleaSCM/sentryd/internal/models"

// Verdict is the scorer's opinion on a single feature vector.
type Verdict struct {
	Attack     bool
	Confidence float64 // in [0,1]
}

// Scorer is implemented by every anomaly detection backend the pipeline
// can wire in.
type Scorer interface {
	Score(fm models.FeatureMap) *Verdict
}

// NullScorer always returns nil, used when no model is configured.
type NullScorer struct{}

func (NullScorer) Score(models.FeatureMap) *Verdict { return nil }
