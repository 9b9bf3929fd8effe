package entities

import "image"

// Image variant names produced by the preprocessor
const (
	VariantOriginal     = "original"
	VariantGrayscale    = "grayscale"
	VariantContrast     = "contrast"
	VariantThreshold    = "threshold"
	VariantDenoised     = "denoised"
	VariantEdgeEnhanced = "edge_enhanced"
	VariantSharpened    = "sharpened"
)

// VariantOrder is the stable iteration order of image variants
var VariantOrder = []string{
	VariantOriginal,
	VariantGrayscale,
	VariantContrast,
	VariantThreshold,
	VariantDenoised,
	VariantEdgeEnhanced,
	VariantSharpened,
}

// ImageVariants maps a variant name to its image. Produced by one
// preprocessing call and read-only afterwards.
type ImageVariants map[string]image.Image

// Names returns the names present, in VariantOrder
func (v ImageVariants) Names() []string {
	names := make([]string, 0, len(v))
	for _, name := range VariantOrder {
		if _, ok := v[name]; ok {
			names = append(names, name)
		}
	}
	return names
}
