package logic

import (
	"fmt"
	"math"
)

// EmissionsUnit is the display unit for an emissions quantity.
type EmissionsUnit string

const (
	UnitMilligram EmissionsUnit = "mg"
	UnitGram      EmissionsUnit = "g"
	UnitKilogram  EmissionsUnit = "kg"
)

// Number of milligrams in one of each unit.
const (
	milligramsPerGram     = 1000
	milligramsPerKilogram = 1000000
)

// ConvertToLargestUnit converts a milligram quantity into the largest unit
// that keeps the value at or above 1. Zero and NaN map to (0, mg).
func ConvertToLargestUnit(milliGrams float64) (float64, EmissionsUnit) {
	if milliGrams == 0 || math.IsNaN(milliGrams) {
		return 0, UnitMilligram
	}
	switch {
	case milliGrams < milligramsPerGram:
		return milliGrams, UnitMilligram
	case milliGrams < milligramsPerKilogram:
		return milliGrams / milligramsPerGram, UnitGram
	default:
		return milliGrams / milligramsPerKilogram, UnitKilogram
	}
}

// FormatForDisplay renders a milligram quantity as "12.34 g".
func FormatForDisplay(milliGrams float64) string {
	v, unit := ConvertToLargestUnit(milliGrams)
	return fmt.Sprintf("%.2f %s", v, unit)
}

// gramsPerKWhPerMgPerWs converts g/kWh into mg/Ws:
// 1 g/kWh = 1000 mg / 3.6e6 Ws = 1/3600 mg/Ws.
const gramsPerKWhPerMgPerWs = 3600

// GramsPerKWhToMgPerWs converts a grid emission factor from g/kWh to mg/(W·s).
func GramsPerKWhToMgPerWs(gramsPerKWh float64) float64 {
	return gramsPerKWh / gramsPerKWhPerMgPerWs
}
