// Package question generates the arithmetic questions asked each round.
//
// Difficulty ramps with the round counter: rounds 1-3 are simple two-operand
// arithmetic, 4-7 add a third operand and brackets, 8-12 bring squares,
// percentages and square roots, and from round 13 on any tier may come up.
package question

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	TierMin = 1
	TierMax = 4
)

type Question struct {
	Expression string
	Answer     float64
	Tier       int
}

// Generator produces one question per round. Its only state is the round
// counter, reset exclusively by an explicit match restart.
//
// Multiple goroutines may invoke methods on a Generator simultaneously.
type Generator struct {
	mu    sync.Mutex
	round int
	rng   *rand.Rand
}

func NewGenerator() *Generator {
	seed := uint64(time.Now().UnixNano())
	return NewGeneratorWithSeed(seed)
}

func NewGeneratorWithSeed(seed uint64) *Generator {
	return &Generator{
		rng: rand.New(rand.NewPCG(seed, seed>>1)),
	}
}

// Round returns the number of questions generated so far.
func (g *Generator) Round() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.round
}

// Reset zeroes the round counter so difficulty ramps up from scratch.
func (g *Generator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.round = 0
}

// Next advances the round counter and generates the question for it.
func (g *Generator) Next() Question {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.round++

	var tier int
	switch {
	case g.round <= 3:
		tier = 1
	case g.round <= 7:
		tier = 2
	case g.round <= 12:
		tier = 3
	default:
		tier = g.randInt(TierMin, TierMax)
	}

	switch tier {
	case 2:
		return g.tier2()
	case 3:
		return g.tier3()
	case 4:
		return g.tier4()
	default:
		return g.tier1()
	}
}

// tier1 builds a two-operand expression. Subtraction operands are ordered so
// the result is non-negative and division operands are derived from the
// quotient so the result is always a whole number.
func (g *Generator) tier1() Question {
	var a, b int
	var answer float64
	var op string

	switch g.randInt(0, 3) {
	case 0:
		op = "+"
		a, b = g.randInt(5, 99), g.randInt(5, 99)
		answer = float64(a + b)
	case 1:
		op = "-"
		a = g.randInt(20, 99)
		b = g.randInt(5, a)
		answer = float64(a - b)
	case 2:
		op = "×"
		a, b = g.randInt(2, 12), g.randInt(2, 12)
		answer = float64(a * b)
	default:
		op = "÷"
		b = g.randInt(2, 12)
		quotient := g.randInt(2, 12)
		a = b * quotient
		answer = float64(quotient)
	}

	return Question{
		Expression: fmt.Sprintf("%d %s %d", a, op, b),
		Answer:     answer,
		Tier:       1,
	}
}

// tier2 builds a three-operand expression with mixed operators. The divisor
// shapes keep every quotient either exact or rounded to one decimal.
func (g *Generator) tier2() Question {
	a := g.randInt(2, 15)
	b := g.randInt(2, 15)
	c := g.randInt(2, 10)

	sub := 1
	if b < a {
		sub = b
	}

	shapes := []Question{
		{Expression: fmt.Sprintf("%d × %d + %d", a, b, c), Answer: float64(a*b + c)},
		{Expression: fmt.Sprintf("%d × %d - %d", a, b, c), Answer: float64(a*b - c)},
		{Expression: fmt.Sprintf("(%d + %d) × %d", a, b, c), Answer: float64((a + b) * c)},
		{Expression: fmt.Sprintf("(%d - %d) × %d", a, sub, c), Answer: float64((a - sub) * c)},
		{Expression: fmt.Sprintf("%d ÷ %d + %d", a*b, a, c), Answer: float64(b + c)},
		{Expression: fmt.Sprintf("%d × %d ÷ %d", a, b, c), Answer: roundTo(float64(a*b)/float64(c), 1)},
	}

	q := shapes[g.randInt(0, len(shapes)-1)]
	q.Tier = 2
	return q
}

// tier3 builds squares, percentages of round numbers and square roots of
// perfect squares.
func (g *Generator) tier3() Question {
	switch g.randInt(0, 2) {
	case 0:
		n := g.randInt(5, 20)
		return Question{
			Expression: fmt.Sprintf("%d²", n),
			Answer:     float64(n * n),
			Tier:       3,
		}
	case 1:
		percents := []int{5, 10, 15, 20, 25, 50}
		pct := percents[g.randInt(0, len(percents)-1)]
		base := g.randInt(2, 20) * 10
		return Question{
			Expression: fmt.Sprintf("%d%% of %d", pct, base),
			Answer:     float64(pct*base) / 100,
			Tier:       3,
		}
	default:
		squares := []int{4, 9, 16, 25, 36, 49, 64, 81, 100, 121, 144, 169, 196, 225}
		sq := squares[g.randInt(0, len(squares)-1)]
		return Question{
			Expression: fmt.Sprintf("√%d", sq),
			Answer:     math.Sqrt(float64(sq)),
			Tier:       3,
		}
	}
}

// tier4 builds multi-step expressions mixing squares and all four operators.
func (g *Generator) tier4() Question {
	a := g.randInt(2, 10)
	b := g.randInt(2, 10)
	c := g.randInt(2, 10)
	d := g.randInt(2, 10)

	shapes := []Question{
		{Expression: fmt.Sprintf("%d² + %d × %d", a, b, c), Answer: float64(a*a + b*c)},
		{Expression: fmt.Sprintf("(%d + %d)² - %d", a, b, c*d), Answer: float64((a+b)*(a+b) - c*d)},
		{Expression: fmt.Sprintf("%d × %d + %d × %d", a, b, c, d), Answer: float64(a*b + c*d)},
		{Expression: fmt.Sprintf("(%d × %d - %d) ÷ %d", a, b, c, d), Answer: roundTo(float64(a*b-c)/float64(d), 1)},
	}

	q := shapes[g.randInt(0, len(shapes)-1)]
	q.Tier = 4
	return q
}

// randInt returns a uniform int in [min, max]. Callers hold g.mu.
func (g *Generator) randInt(min, max int) int {
	return g.rng.IntN(max-min+1) + min
}

func roundTo(val float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(val*pow) / pow
}
