package metric

import "math"

// NormType identifies how a map is reduced to a scalar.
type NormType int

const (
	// NormAverage is the mean deviation from the ideal value (L1).
	NormAverage NormType = iota
	// NormWorst is the L4 norm, dominated by the worst regions without
	// being decided by a single outlier pixel.
	NormWorst

	NumNorms = 2
)

func (n NormType) String() string {
	switch n {
	case NormAverage:
		return "avg"
	case NormWorst:
		return "worst"
	default:
		return "unknown"
	}
}

// NumChannels is the number of color channels compared (X, Y, B).
const NumChannels = 3

// FeatureCount is the fixed length of a FeatureVector.
const FeatureCount = NumScales * NumChannels * NumMaps * NumNorms

// FeatureVector holds every error norm of a comparison, ordered by scale,
// then channel, then map, then norm. Scales that were not computed because
// the image was too small hold 0, the ideal value.
type FeatureVector [FeatureCount]float64

// FeatureIndex returns the position of a norm within a FeatureVector.
func FeatureIndex(scale, channel int, m MapType, n NormType) int {
	return ((scale*NumChannels+channel)*NumMaps+int(m))*NumNorms + int(n)
}

// At returns the norm stored for the given combination.
func (f *FeatureVector) At(scale, channel int, m MapType, n NormType) float64 {
	return f[FeatureIndex(scale, channel, m, n)]
}

// Norms reduces a map to its average and worst-region norms.
func Norms(m []float64) (avg, worst float64) {
	onePerPixels := 1.0 / float64(len(m))
	var sum1, sum4 float64
	for _, d := range m {
		sum1 += d
		sum4 += math.Pow(d, 4)
	}
	return onePerPixels * sum1, math.Sqrt(math.Sqrt(onePerPixels * sum4))
}

// aggregate stores the norms of one channel's maps at their positions.
func (f *FeatureVector) aggregate(scale, channel int, maps *StatMaps) {
	for m := range maps.Maps {
		avg, worst := Norms(maps.Maps[m])
		f[FeatureIndex(scale, channel, MapType(m), NormAverage)] = avg
		f[FeatureIndex(scale, channel, MapType(m), NormWorst)] = worst
	}
}
