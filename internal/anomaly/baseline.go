/**
 * Baseline Anomaly Scorer.
 *
 * Learns a per-source running mean/variance of a small set of numeric
 * features and flags packets that deviate sharply from it: a Welford
 * running z-score over every numeric feature key, keyed by source IP
 * since no L2 identity is available to this pipeline.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package anomaly

import (
	"math"
	"sync"

	"github.com/kleaSCM/sentryd/internal/models"
)

// DefaultMinSamples is the number of observations a baseline must
// absorb before it is trusted for scoring.
const DefaultMinSamples = 30

// DefaultZThreshold is the deviation, in standard deviations, above
// which a feature is considered a volume/behavior spike.
const DefaultZThreshold = 4.0

// featureStat is a Welford running mean/variance accumulator for one
// feature key.
type featureStat struct {
	n    int64
	mean float64
	m2   float64
}

func (s *featureStat) update(x float64) {
	s.n++
	delta := x - s.mean
	s.mean += delta / float64(s.n)
	delta2 := x - s.mean
	s.m2 += delta * delta2
}

func (s *featureStat) stddev() float64 {
	if s.n < 2 {
		return 0
	}
	return math.Sqrt(s.m2 / float64(s.n-1))
}

func (s *featureStat) zscore(x float64) float64 {
	sd := s.stddev()
	if sd == 0 {
		if x == s.mean {
			return 0
		}
		return math.Inf(1) // any departure from a constant baseline
	}
	return math.Abs(x-s.mean) / sd
}

// sourceBaseline is the per-source-IP accumulator set.
type sourceBaseline struct {
	stats map[models.FeatureKey]*featureStat
}

// BaselineScorer implements Scorer as a lightweight, opaque-model
// stand-in: no external model file is loaded, but the interface
// boundary is identical to one that would wrap a real classifier.
type BaselineScorer struct {
	mu         sync.Mutex
	bySource   map[string]*sourceBaseline
	minSamples int64
	zThreshold float64
}

// NewBaselineScorer builds a scorer with the given minimum sample count
// and z-score threshold; zero values fall back to the package defaults.
func NewBaselineScorer(minSamples int64, zThreshold float64) *BaselineScorer {
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	if zThreshold <= 0 {
		zThreshold = DefaultZThreshold
	}
	return &BaselineScorer{
		bySource:   make(map[string]*sourceBaseline),
		minSamples: minSamples,
		zThreshold: zThreshold,
	}
}

// globalKey is the bucket used when no source identity is available,
// matching the plain Scorer.Score contract.
const globalKey = ""

// Score satisfies the Scorer interface, tracking one shared baseline
// across all traffic. The pipeline should prefer ScoreForSource when it
// has packet identity, since per-source baselines are far more
// sensitive to scanning/flooding from a single host.
func (b *BaselineScorer) Score(fm models.FeatureMap) *Verdict {
	return b.score(globalKey, fm)
}

// ScoreForSource is the keyed variant the pipeline calls: it knows
// the packet's source IP and passes it explicitly rather than
// threading it through FeatureMap, keying the baseline per source IP.
func (b *BaselineScorer) ScoreForSource(srcIP string, fm models.FeatureMap) *Verdict {
	return b.score(srcIP, fm)
}

func (b *BaselineScorer) score(key string, fm models.FeatureMap) *Verdict {
	b.mu.Lock()
	defer b.mu.Unlock()

	sb, ok := b.bySource[key]
	if !ok {
		sb = &sourceBaseline{stats: make(map[models.FeatureKey]*featureStat)}
		b.bySource[key] = sb
	}

	var maxZ float64
	var established bool
	for key, val := range fm {
		x, ok := val.AsFloat()
		if !ok {
			continue
		}
		st, ok := sb.stats[key]
		if !ok {
			st = &featureStat{}
			sb.stats[key] = st
		}
		if st.n >= b.minSamples {
			established = true
			if z := st.zscore(x); z > maxZ {
				maxZ = z
			}
		}
		st.update(x)
	}

	if !established || maxZ < b.zThreshold {
		return nil
	}

	confidence := math.Min(1.0, maxZ/(b.zThreshold*2))
	return &Verdict{Attack: true, Confidence: confidence}
}
