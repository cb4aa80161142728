package challenge

import (
	"fmt"
	"math/rand/v2"
)

// State is one arithmetic puzzle, scoped to a single pending execution
// attempt. A failed verification invalidates it; the caller regenerates.
type State struct {
	Question       string `json:"question"`
	ExpectedAnswer int    `json:"-"`
	Verified       bool   `json:"verified"`
}

var operators = []rune{'+', '-', '*'}

// Generate picks two operands in [1,10] and an operator uniformly at random.
// Subtraction operands are ordered so the answer is never negative.
func Generate() State {
	a := rand.IntN(10) + 1
	b := rand.IntN(10) + 1
	op := operators[rand.IntN(len(operators))]

	var answer int
	switch op {
	case '+':
		answer = a + b
	case '-':
		if b > a {
			a, b = b, a
		}
		answer = a - b
	case '*':
		answer = a * b
	}

	return State{
		Question:       fmt.Sprintf("%d %c %d", a, op, b),
		ExpectedAnswer: answer,
	}
}

// Verify compares the submitted answer against the puzzle. On mismatch the
// state must be discarded and a fresh puzzle generated; the old question is
// never retried.
func Verify(s State, answer int) bool {
	return answer == s.ExpectedAnswer
}
