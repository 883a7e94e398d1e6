package utils

import "strings"

// ComputeDistance computes the Levenshtein distance between two strings.
// It is case-insensitive.
func ComputeDistance(s1, s2 string) int {
	s1 = strings.ToLower(s1)
	s2 = strings.ToLower(s2)

	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	matrix := make([][]int, len(s1)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(s2)+1)
	}

	for i := 0; i <= len(s1); i++ {
		matrix[i][0] = i
	}
	for j := 0; j <= len(s2); j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			min := matrix[i-1][j] + 1 // deletion
			if ins := matrix[i][j-1] + 1; ins < min { // insertion
				min = ins
			}
			if sub := matrix[i-1][j-1] + cost; sub < min { // substitution
				min = sub
			}
			matrix[i][j] = min
		}
	}

	return matrix[len(s1)][len(s2)]
}

// Similarity scores how close two strings are, as 1 - distance/maxLen.
// 1.0 is an exact match (ignoring case), 0.0 shares nothing.
func Similarity(s1, s2 string) float64 {
	maxLen := len(s1)
	if len(s2) > maxLen {
		maxLen = len(s2)
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(ComputeDistance(s1, s2))/float64(maxLen)
}

// ClosestMatch returns the option most similar to input when its score
// meets the threshold, and "" otherwise. Used for "did you mean" hints.
func ClosestMatch(input string, options []string, threshold float64) string {
	best := ""
	bestScore := 0.0
	for _, option := range options {
		if score := Similarity(input, option); score > bestScore {
			best = option
			bestScore = score
		}
	}
	if bestScore >= threshold {
		return best
	}
	return ""
}
