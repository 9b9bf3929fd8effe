package preprocessing

import (
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/disintegration/imaging"
)

func clamp(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}

// boostContrast scales every channel by alpha
func boostContrast(gray *image.NRGBA, alpha float64) *image.NRGBA {
	return imaging.AdjustFunc(gray, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clamp(float64(c.R) * alpha),
			G: clamp(float64(c.G) * alpha),
			B: clamp(float64(c.B) * alpha),
			A: c.A,
		}
	})
}

// adaptiveThreshold compares each pixel with the Gaussian-weighted mean of
// its block minus c. Foreground (ink) becomes black on white.
func adaptiveThreshold(gray *image.NRGBA, block int, c float64) *image.NRGBA {
	if block%2 == 0 {
		block++
	}
	// Same sigma OpenCV derives for a Gaussian kernel of this size
	sigma := 0.3*(float64(block-1)*0.5-1) + 0.8
	mean := imaging.Blur(gray, sigma)

	b := gray.Bounds()
	out := imaging.New(b.Dx(), b.Dy(), color.NRGBA{255, 255, 255, 255})
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			i := y*gray.Stride + x*4
			j := y*mean.Stride + x*4
			if float64(gray.Pix[i]) <= float64(mean.Pix[j])-c {
				k := y*out.Stride + x*4
				out.Pix[k], out.Pix[k+1], out.Pix[k+2] = 0, 0, 0
			}
		}
	}
	return out
}

// medianFilter replaces each pixel with the median of its 3x3 neighborhood
func medianFilter(gray *image.NRGBA) *image.NRGBA {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	out := imaging.New(w, h, color.NRGBA{0, 0, 0, 255})
	window := make([]int, 0, 9)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			window = window[:0]
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					window = append(window, int(gray.Pix[ny*gray.Stride+nx*4]))
				}
			}
			sort.Ints(window)
			v := uint8(window[len(window)/2])
			k := y*out.Stride + x*4
			out.Pix[k], out.Pix[k+1], out.Pix[k+2] = v, v, v
		}
	}
	return out
}

var (
	sobelX = [9]float64{-1, 0, 1, -2, 0, 2, -1, 0, 1}
	sobelY = [9]float64{-1, -2, -1, 0, 0, 0, 1, 2, 1}
)

// enhanceEdges blends the grayscale image (weight) with its Sobel edge
// magnitude (1 - weight).
func enhanceEdges(gray *image.NRGBA, weight float64) *image.NRGBA {
	gx := imaging.Convolve3x3(gray, sobelX, &imaging.ConvolveOptions{Abs: true})
	gy := imaging.Convolve3x3(gray, sobelY, &imaging.ConvolveOptions{Abs: true})

	b := gray.Bounds()
	out := imaging.New(b.Dx(), b.Dy(), color.NRGBA{0, 0, 0, 255})
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			i := y*gray.Stride + x*4
			edge := math.Hypot(float64(gx.Pix[i]), float64(gy.Pix[i]))
			if edge > 255 {
				edge = 255
			}
			v := clamp(weight*float64(gray.Pix[i]) + (1-weight)*edge)
			k := y*out.Stride + x*4
			out.Pix[k], out.Pix[k+1], out.Pix[k+2] = v, v, v
		}
	}
	return out
}
