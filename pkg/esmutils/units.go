package esmutils

import "math"

// Board reports millivolts as "<int>.<3 digit fraction>". The result is the
// float closest to that decimal.
func FixedPointMilli(intPart, fracPart int) float64 {
	return RoundMilli(float64(intPart) + float64(fracPart)/1000.0)
}

// Convert signed ADC counts to millivolts for display.
// Returns the raw count unchanged when no reference is configured.
func RawToMillivolts(raw float64, vrefMV float64, fullScale int) float64 {
	if vrefMV <= 0 || fullScale <= 0 {
		return raw
	}
	return raw * vrefMV / float64(fullScale)
}

// Round to the board's 3 decimal precision.
func RoundMilli(v float64) float64 {
	return math.Round(v*1000) / 1000
}
