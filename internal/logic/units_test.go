package logic

import (
	"math"
	"testing"
)

func TestConvertToLargestUnit(t *testing.T) {
	tests := []struct {
		name     string
		mg       float64
		wantV    float64
		wantUnit EmissionsUnit
	}{
		{"zero", 0, 0, UnitMilligram},
		{"nan is undefined", math.NaN(), 0, UnitMilligram},
		{"small", 0.25, 0.25, UnitMilligram},
		{"below gram", 999.99, 999.99, UnitMilligram},
		{"exactly one gram", 1000, 1, UnitGram},
		{"grams", 12345, 12.345, UnitGram},
		{"below kilogram", 999999, 999.999, UnitGram},
		{"exactly one kilogram", 1000000, 1, UnitKilogram},
		{"no clamp above kg", 5e9, 5000, UnitKilogram},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, unit := ConvertToLargestUnit(tt.mg)
			if unit != tt.wantUnit {
				t.Errorf("unit: got %s, want %s", unit, tt.wantUnit)
			}
			if math.Abs(v-tt.wantV) > 1e-9 {
				t.Errorf("value: got %v, want %v", v, tt.wantV)
			}
		})
	}
}

func TestConvertToLargestUnitIdentityBelowGram(t *testing.T) {
	for mg := 0.5; mg < 1000; mg += 37.5 {
		v, unit := ConvertToLargestUnit(mg)
		if v != mg || unit != UnitMilligram {
			t.Errorf("ConvertToLargestUnit(%v) = (%v, %s), want (%v, mg)", mg, v, unit, mg)
		}
	}
}

func TestFormatForDisplay(t *testing.T) {
	tests := []struct {
		mg   float64
		want string
	}{
		{0, "0.00 mg"},
		{12.345, "12.35 mg"},
		{1500, "1.50 g"},
		{2500000, "2.50 kg"},
	}
	for _, tt := range tests {
		if got := FormatForDisplay(tt.mg); got != tt.want {
			t.Errorf("FormatForDisplay(%v): got %q, want %q", tt.mg, got, tt.want)
		}
	}
}

func TestGramsPerKWhToMgPerWs(t *testing.T) {
	got := GramsPerKWhToMgPerWs(475)
	if math.Abs(got-0.131944) > 1e-5 {
		t.Errorf("got %v, want ~0.1319", got)
	}
	if GramsPerKWhToMgPerWs(3600) != 1 {
		t.Errorf("3600 g/kWh should be exactly 1 mg/Ws")
	}
}
