/**
 * Baseline Anomaly Scorer Tests.
 *
 * Verifies a stable baseline stays quiet, a sharp deviation produces a
 * verdict once enough samples have been absorbed, and Score/
 * ScoreForSource track independent buckets.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package anomaly

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kleaSCM/sentryd/internal/models"
)

func fm(ipLen int64) models.FeatureMap {
	return models.FeatureMap{models.FeatureIPLen: models.IntValue(ipLen)}
}

func TestBaselineScorerQuietBeforeMinSamples(t *testing.T) {
	s := NewBaselineScorer(30, 4.0)
	for i := 0; i < 10; i++ {
		require.Nil(t, s.ScoreForSource("10.0.0.1", fm(100)))
	}
}

func TestBaselineScorerFlagsSharpDeviation(t *testing.T) {
	s := NewBaselineScorer(30, 4.0)
	for i := 0; i < 40; i++ {
		s.ScoreForSource("10.0.0.1", fm(100))
	}
	verdict := s.ScoreForSource("10.0.0.1", fm(100000))
	require.NotNil(t, verdict)
	require.True(t, verdict.Attack)
	require.GreaterOrEqual(t, verdict.Confidence, 0.0)
	require.LessOrEqual(t, verdict.Confidence, 1.0)
}

func TestBaselineScorerPerSourceBucketsIndependent(t *testing.T) {
	s := NewBaselineScorer(30, 4.0)
	for i := 0; i < 40; i++ {
		s.ScoreForSource("10.0.0.1", fm(100))
	}
	// A fresh source has no established baseline yet, so even a huge
	// value stays quiet until it too clears minSamples.
	require.Nil(t, s.ScoreForSource("10.0.0.2", fm(100000)))
}

func TestBaselineScorerGlobalScoreIsNotDeadCode(t *testing.T) {
	s := NewBaselineScorer(5, 4.0)
	for i := 0; i < 10; i++ {
		s.Score(fm(100))
	}
	verdict := s.Score(fm(100000))
	require.NotNil(t, verdict)
	require.True(t, verdict.Attack)
}

func TestNullScorerAlwaysNil(t *testing.T) {
	require.Nil(t, NullScorer{}.Score(fm(100)))
}
