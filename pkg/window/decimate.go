package window

// Decimate reduces w to at most maxPoints rows for drawing, keeping the first
// row and picking rows at an even stride. Slices in dst are reused when they
// have enough capacity. maxPoints <= 0 disables decimation.
func Decimate(dst Window, w Window, maxPoints int) Window {
	if maxPoints <= 0 {
		maxPoints = w.Len()
	}

	dst.Time = downsample(dst.Time, w.Time, maxPoints)
	if cap(dst.Series) >= len(w.Series) {
		dst.Series = dst.Series[:len(w.Series)]
	} else {
		dst.Series = make([]Series, len(w.Series))
	}
	for i, s := range w.Series {
		dst.Series[i].Name = s.Name
		dst.Series[i].Offset = s.Offset
		dst.Series[i].Values = downsample(dst.Series[i].Values, s.Values, maxPoints)
	}
	return dst
}

// downsample copies src into dst, decimating to maxPoints when src is longer.
func downsample(dst, src []float64, maxPoints int) []float64 {
	if len(src) <= maxPoints {
		if cap(dst) >= len(src) {
			dst = dst[:len(src)]
		} else {
			dst = make([]float64, len(src))
		}
		copy(dst, src)
		return dst
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]float64, 0, maxPoints)
	}

	step := float64(len(src)) / float64(maxPoints)
	for i := range maxPoints {
		idx := int(float64(i) * step)
		if idx < len(src) {
			dst = append(dst, src[idx])
		}
	}
	return dst
}
