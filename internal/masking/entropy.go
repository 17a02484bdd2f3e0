package masking

import "math"

// Entropy returns the character-frequency Shannon entropy of text in bits
// per character. The detection pipeline does not consult it; it is an
// extension point for callers that want to score candidate strings on
// their own (random tokens tend to land above 3.5 bits per character).
func Entropy(text string) float64 {
	if len(text) == 0 {
		return 0
	}

	freq := make(map[rune]int)
	total := 0
	for _, char := range text {
		freq[char]++
		total++
	}

	entropy := 0.0
	length := float64(total)
	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}
