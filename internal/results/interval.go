package results

import (
	"math"
	"math/rand/v2"
	"slices"
)

// ScoreInterval is a bootstrap confidence interval around the mean total
// score of a set of sessions.
type ScoreInterval struct {
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	Mean       float64 `json:"mean"`
	Level      float64 `json:"level"`
	Resamples  int     `json:"resamples"`
	SampleSize int     `json:"sample_size"`
}

// DefaultResamples is the number of bootstrap resamples used by [Interval].
const DefaultResamples = 10000

// Interval computes a percentile bootstrap interval at level (e.g. 0.95)
// over the total scores of the scored entries. With fewer than two scored
// sessions the interval collapses onto the mean. A nil rng uses a random seed.
func Interval(entries []Entry, level float64, rng *rand.Rand) ScoreInterval {
	scores := totalScores(entries)
	m := meanOf(scores)
	ci := ScoreInterval{Lower: m, Upper: m, Mean: m, Level: level, SampleSize: len(scores)}
	if len(scores) < 2 {
		return ci
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	means := make([]float64, DefaultResamples)
	sample := make([]float64, len(scores))
	for i := range means {
		for j := range sample {
			sample[j] = scores[rng.IntN(len(scores))]
		}
		means[i] = meanOf(sample)
	}
	slices.Sort(means)

	alpha := 1 - level
	lo := int(math.Floor(alpha / 2 * DefaultResamples))
	hi := min(int(math.Floor((1-alpha/2)*DefaultResamples)), DefaultResamples-1)

	ci.Lower = means[lo]
	ci.Upper = means[hi]
	ci.Resamples = DefaultResamples
	return ci
}

func totalScores(entries []Entry) []float64 {
	var scores []float64
	for _, e := range entries {
		if e.Outcome != nil {
			scores = append(scores, e.Outcome.TotalScore)
		}
	}
	return scores
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
