package entity

import "testing"

func TestPriceImpactLevelFor(t *testing.T) {
	tests := []struct {
		pct  float64
		want PriceImpactLevel
	}{
		{0, PriceImpactOK},
		{0.01, PriceImpactOK},
		{0.0101, PriceImpactWarning},
		{0.05, PriceImpactWarning},
		{0.0501, PriceImpactError},
	}
	for _, tt := range tests {
		if got := PriceImpactLevelFor(tt.pct); got != tt.want {
			t.Errorf("PriceImpactLevelFor(%v) = %q, want %q", tt.pct, got, tt.want)
		}
	}
}
