package hdrpq

type rgb struct {
	r, g, b float32
}

// scRGBToBT2100 maps linear scRGB (1.0 = 80 nits) to linear BT.2100 normalized
// to the PQ range (1.0 = 10000 nits). Rows sum to 80/10000.
var scRGBToBT2100 = [3][3]float32{
	{2939026994.0 / 585553224375.0, 9255011753.0 / 3513319346250.0, 173911579.0 / 501902763750.0},
	{76515593.0 / 138420033750.0, 6109575001.0 / 830520202500.0, 75493061.0 / 830520202500.0},
	{12225392.0 / 93230009375.0, 1772384008.0 / 2517210253125.0, 18035212433.0 / 2517210253125.0},
}

// toBT2100 applies the gamut matrix and hard-clips the result to [0, 1].
func toBT2100(v rgb) rgb {
	m := &scRGBToBT2100
	// Products are converted explicitly to keep the compiler from fusing multiply-add.
	return rgb{
		r: saturate(float32(m[0][0]*v.r) + float32(m[0][1]*v.g) + float32(m[0][2]*v.b)),
		g: saturate(float32(m[1][0]*v.r) + float32(m[1][1]*v.g) + float32(m[1][2]*v.b)),
		b: saturate(float32(m[2][0]*v.r) + float32(m[2][1]*v.g) + float32(m[2][2]*v.b)),
	}
}

// saturate clamps v to [0, 1], NaN becomes 0.
func saturate(v float32) float32 {
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func max3(a, b, c float32) float32 {
	if a >= b && a >= c {
		return a
	}
	if b >= a && b >= c {
		return b
	}
	return c
}
