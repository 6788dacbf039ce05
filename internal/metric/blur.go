package metric

import "math"

// blurSigma is the standard deviation of the local statistics window, the
// same at every scale.
const blurSigma = 1.5

// recursiveGaussian approximates a Gaussian of fixed sigma by a sum of three
// truncated cosines, each evaluated with a second-order IIR recurrence
// (Charalampidis 2016). Cost per sample is independent of sigma.
type recursiveGaussian struct {
	radius int
	n2     [3]float32
	d1     [3]float32
}

func newRecursiveGaussian(sigma float64) *recursiveGaussian {
	radius := math.Round(3.2795*sigma + 0.2546)

	piDiv2r := math.Pi / (2 * radius)
	omega := [3]float64{piDiv2r, 3 * piDiv2r, 5 * piDiv2r}

	p1 := +1 / math.Tan(0.5*omega[0])
	p3 := -1 / math.Tan(0.5*omega[1])
	p5 := +1 / math.Tan(0.5*omega[2])

	r1 := +p1 * p1 / math.Sin(omega[0])
	r3 := -p3 * p3 / math.Sin(omega[1])
	r5 := +p5 * p5 / math.Sin(omega[2])

	negHalfSigma2 := -0.5 * sigma * sigma
	var rho [3]float64
	for i := range rho {
		rho[i] = math.Exp(negHalfSigma2*omega[i]*omega[i]) / radius
	}

	d13 := p1*r3 - r1*p3
	d35 := p3*r5 - r3*p5
	d51 := p5*r1 - r5*p1
	zeta15 := d35 / d13
	zeta35 := d51 / d13

	a := [3][3]float64{
		{p1, p3, p5},
		{r1, r3, r5},
		{zeta15, zeta35, 1},
	}
	gamma := [3]float64{
		1,
		radius*radius - sigma*sigma,
		zeta15*rho[0] + zeta35*rho[1] + rho[2],
	}
	beta := solve3x3(a, gamma)

	rg := &recursiveGaussian{radius: int(radius)}
	for i := range beta {
		rg.n2[i] = float32(-beta[i] * math.Cos(omega[i]*(radius+1)))
		rg.d1[i] = float32(-2 * math.Cos(omega[i]))
	}
	return rg
}

// solve3x3 solves a*x = b by Cramer's rule.
func solve3x3(a [3][3]float64, b [3]float64) [3]float64 {
	det := func(m [3][3]float64) float64 {
		return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
			m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
			m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
	}
	d := det(a)
	var x [3]float64
	for col := range x {
		m := a
		for row := range m {
			m[row][col] = b[row]
		}
		x[col] = det(m) / d
	}
	return x
}

// blurRow filters one row. Samples outside the row are zero.
func (rg *recursiveGaussian) blurRow(in, out []float32) {
	width := len(in)
	n := rg.radius
	var prev1, prev3, prev5 float32
	var prev21, prev23, prev25 float32

	for i := -n + 1; i < width; i++ {
		var left, right float32
		if j := i - n - 1; j >= 0 {
			left = in[j]
		}
		if j := i + n - 1; j < width {
			right = in[j]
		}
		sum := left + right

		out1 := sum*rg.n2[0] - rg.d1[0]*prev1 - prev21
		out3 := sum*rg.n2[1] - rg.d1[1]*prev3 - prev23
		out5 := sum*rg.n2[2] - rg.d1[2]*prev5 - prev25

		prev21, prev23, prev25 = prev1, prev3, prev5
		prev1, prev3, prev5 = out1, out3, out5

		if i >= 0 {
			out[i] = out1 + out3 + out5
		}
	}
}

// blurColumns filters every column of a width x height plane at once,
// walking rows so memory access stays sequential.
func (rg *recursiveGaussian) blurColumns(in, out []float32, width, height int, state []float32) {
	n := rg.radius
	// six running outputs per column
	prev1 := state[0*width : 1*width]
	prev3 := state[1*width : 2*width]
	prev5 := state[2*width : 3*width]
	prev21 := state[3*width : 4*width]
	prev23 := state[4*width : 5*width]
	prev25 := state[5*width : 6*width]
	clear(state)

	for y := -n + 1; y < height; y++ {
		var top, bottom []float32
		if j := y - n - 1; j >= 0 {
			top = in[j*width : (j+1)*width]
		}
		if j := y + n - 1; j < height {
			bottom = in[j*width : (j+1)*width]
		}
		var dst []float32
		if y >= 0 {
			dst = out[y*width : (y+1)*width]
		}

		for x := 0; x < width; x++ {
			var sum float32
			if top != nil {
				sum += top[x]
			}
			if bottom != nil {
				sum += bottom[x]
			}

			out1 := sum*rg.n2[0] - rg.d1[0]*prev1[x] - prev21[x]
			out3 := sum*rg.n2[1] - rg.d1[1]*prev3[x] - prev23[x]
			out5 := sum*rg.n2[2] - rg.d1[2]*prev5[x] - prev25[x]

			prev21[x], prev23[x], prev25[x] = prev1[x], prev3[x], prev5[x]
			prev1[x], prev3[x], prev5[x] = out1, out3, out5

			if dst != nil {
				dst[x] = out1 + out3 + out5
			}
		}
	}
}

// blurrer owns the scratch space for blurring planes of one size. It is not
// safe for concurrent use; each worker gets its own.
type blurrer struct {
	rg     *recursiveGaussian
	width  int
	height int
	temp   []float32
	state  []float32
}

var defaultGaussian = newRecursiveGaussian(blurSigma)

func newBlurrer(width, height int) *blurrer {
	return &blurrer{
		rg:     defaultGaussian,
		width:  width,
		height: height,
		temp:   make([]float32, width*height),
		state:  make([]float32, 6*width),
	}
}

// blur writes the Gaussian-filtered in to out. in and out must not alias.
func (b *blurrer) blur(in, out []float32) {
	w := b.width
	for y := 0; y < b.height; y++ {
		b.rg.blurRow(in[y*w:(y+1)*w], b.temp[y*w:(y+1)*w])
	}
	b.rg.blurColumns(b.temp, out, w, b.height, b.state)
}
