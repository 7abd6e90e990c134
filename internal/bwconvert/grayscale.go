package bwconvert

// ITU-R BT.709 perceptual luminance weights.
const (
	lumaRed   = 0.2126
	lumaGreen = 0.7152
	lumaBlue  = 0.0722
)

// samplesPerRGBPixel is the sample count of a decoded RGB buffer.
const samplesPerRGBPixel = 3

// reduceToGray collapses a dense 3-samples-per-pixel RGB buffer into a
// single-channel grayscale buffer of the same dimensions. The weighted sum is
// computed in float32 and the fractional part is discarded, not rounded.
func reduceToGray(rgb []uint8, width, height int) []uint8 {
	total := width * height
	gray := make([]uint8, total)

	for i := range total {
		r := float32(rgb[samplesPerRGBPixel*i])
		g := float32(rgb[samplesPerRGBPixel*i+1])
		b := float32(rgb[samplesPerRGBPixel*i+2])
		gray[i] = uint8(lumaRed*r + lumaGreen*g + lumaBlue*b)
	}

	return gray
}
