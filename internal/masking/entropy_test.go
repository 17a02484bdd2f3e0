package masking

import (
	"math"
	"testing"
)

func TestEntropy(t *testing.T) {
	// Power-of-two alphabets give exact values.
	exact := []struct {
		name string
		text string
		want float64
	}{
		{"Empty", "", 0},
		{"SingleSymbol", "aaaa", 0},
		{"TwoSymbols", "ab", 1.0},
		{"TwoSymbolsRepeated", "aabb", 1.0},
		{"EightSymbols", "abcdefgh", 3.0},
		{"SixteenSymbols", "0123456789abcdef", 4.0},
		{"RunesNotBytes", "日日夜夜", 1.0},
	}
	for _, tt := range exact {
		t.Run(tt.name, func(t *testing.T) {
			if got := Entropy(tt.text); got != tt.want {
				t.Errorf("Entropy(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}

	t.Run("UnevenDistribution", func(t *testing.T) {
		// H("aab") = log2(3) - 2/3
		want := 0.9182958340544896
		if got := Entropy("aab"); math.Abs(got-want) > 1e-9 {
			t.Errorf("Entropy(\"aab\") = %v, want %v", got, want)
		}
	})

	t.Run("RandomTokenScoresAboveProse", func(t *testing.T) {
		token := Entropy("x9Kf2mQ8vLp3TzR7wJn4")
		prose := Entropy("please update the password policy soon")
		if token <= prose {
			t.Errorf("token entropy %v should exceed prose entropy %v", token, prose)
		}
		if token < 3.5 {
			t.Errorf("token entropy %v, want at least 3.5", token)
		}
	})
}
