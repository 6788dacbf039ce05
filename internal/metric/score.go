package metric

import (
	"fmt"
	"math"
)

// publishedWeights is the fitted SSIMULACRA2 coefficient table in its
// published order: channel, then scale, then norm, then map. It is
// calibration data and must not be edited outside a model update.
var publishedWeights = []float64{
	0.0,
	0.0007376606707406586,
	0.0,
	0.0,
	0.0007793481682867309,
	0.0,
	0.0,
	0.0004371155730107379,
	0.0,
	1.1041726426657346,
	0.00066284834129271,
	0.00015231632783718752,
	0.0,
	0.0016406437456599754,
	0.0,
	1.8422455520539298,
	11.441172603757666,
	0.0,
	0.0007989109436015163,
	0.000176816438078653,
	0.0,
	1.8787594979546387,
	10.94906990605142,
	0.0,
	0.0007289346991508072,
	0.9677937080626833,
	0.0,
	0.00014003424285435884,
	0.9981766977854967,
	0.00031949755934435053,
	0.0004550992113792063,
	0.0,
	0.0,
	0.0013648766163243398,
	0.0,
	0.0,
	0.0,
	0.0,
	0.0,
	7.466890328078848,
	0.0,
	17.445833984131262,
	0.0006235601634041466,
	0.0,
	0.0,
	6.683678146179332,
	0.00037724407979611296,
	1.027889937768264,
	225.20515300849274,
	0.0,
	0.0,
	19.213238186143016,
	0.0011401524586618361,
	0.001237755635509985,
	176.39317598450694,
	0.0,
	0.0,
	24.43300999870476,
	0.28520802612117757,
	0.0004485436923833408,
	0.0,
	0.0,
	0.0,
	34.77906344483772,
	44.835625328877896,
	0.0,
	0.0,
	0.0,
	0.0,
	0.0,
	0.0,
	0.0,
	0.0,
	0.0008680556573291698,
	0.0,
	0.0,
	0.0,
	0.0,
	0.0,
	0.0005313191874358747,
	0.0,
	0.00016533814161379112,
	0.0,
	0.0,
	0.0,
	0.0,
	0.0,
	0.0004179171803251336,
	0.0017290828234722833,
	0.0,
	0.0020827005846636437,
	0.0,
	0.0,
	8.826982764996862,
	23.19243343998926,
	0.0,
	95.1080498811086,
	0.9863978034400682,
	0.9834382792465353,
	0.0012286405048278493,
	171.2667255897307,
	0.9807858872435379,
	0.0,
	0.0,
	0.0,
	0.0005130064588990679,
	0.0,
	0.00010854057858411537,
}

// Fixed mapping from the weighted sum to the published score range.
const (
	rawScale  = 0.9562382616834844
	polyA     = 2.326765642916932
	polyB     = -0.020884521182843837
	polyC     = 6.248496625763138e-05
	scoreExp  = 0.6276336467831387
	MaxScore  = 100.0
	scoreSpan = 10.0
)

func init() {
	checkWeights(publishedWeights)
}

func checkWeights(table []float64) {
	if len(table) != FeatureCount {
		panic(fmt.Sprintf("metric: coefficient table has %d entries, want %d", len(table), FeatureCount))
	}
}

// Weight returns the coefficient applied to a feature when scales pyramid
// levels were compared. Coefficients are consumed in published order over
// the compared levels only, so outside channel 0 the same feature takes a
// different coefficient in an image with fewer than NumScales levels.
func Weight(scales, scale, channel int, m MapType, n NormType) float64 {
	return publishedWeights[((channel*scales+scale)*NumNorms+int(n))*NumMaps+int(m)]
}

// Combine maps the first scales levels of a feature vector to the final
// score. A zero vector scores exactly MaxScore; larger errors lower the
// score without bound.
func Combine(f *FeatureVector, scales int) float64 {
	scales = max(0, min(scales, NumScales))

	var raw float64
	i := 0
	for c := 0; c < NumChannels; c++ {
		for scale := 0; scale < scales; scale++ {
			for n := NormType(0); n < NumNorms; n++ {
				for m := MapType(0); m < NumMaps; m++ {
					raw += publishedWeights[i] * math.Abs(f.At(scale, c, m, n))
					i++
				}
			}
		}
	}

	raw *= rawScale
	raw = polyA*raw + polyB*raw*raw + polyC*raw*raw*raw
	if raw <= 0 {
		return MaxScore
	}
	return MaxScore - scoreSpan*math.Pow(raw, scoreExp)
}
