package app

import "strings"

// DefaultRoundSeconds is the per-question answer window used for the speed bonus.
const DefaultRoundSeconds = 15

// AnswerCorrect compares a submitted answer against the stored one using
// trimmed exact equality. No case folding.
func AnswerCorrect(submitted, correct string) bool {
	return strings.TrimSpace(submitted) == strings.TrimSpace(correct)
}

// Score maps correctness and remaining time to points: 0 for a wrong answer,
// base 100 plus up to 50 speed bonus linear in remaining time for a right one.
// timeRemaining is caller-supplied and not clamped here.
func Score(correct bool, timeRemaining, roundLength float64) int {
	if !correct {
		return 0
	}
	if roundLength <= 0 {
		roundLength = DefaultRoundSeconds
	}
	return 100 + int((timeRemaining/roundLength)*50)
}
