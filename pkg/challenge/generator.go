package challenge

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

// Symbol pools for the visual challenge kinds.
var (
	fruitSymbols = []string{
		"🍎", "🍊", "🍋", "🍇", "🍓", "🍒", "🥝", "🍑", "🍍", "🥭",
		"🌽", "🥕", "🍆", "🥒", "🌶️",
	}
	animalSymbols = []string{
		"🐶", "🐱", "🐭", "🐹", "🐰", "🦊", "🐻", "🐼", "🐨", "🐯",
		"🦁", "🐮", "🐷", "🐸", "🐵",
	}
)

// Kind identifies a challenge puzzle variant.
type Kind int

const (
	KindArithmetic Kind = iota
	KindVisualCount
	KindVisualFind
)

// Puzzle is one generated challenge: a question, the correct answer and
// four answer options. Options always contain the answer exactly once and
// are otherwise unique.
type Puzzle struct {
	Kind     Kind
	Question string
	Answer   string
	Options  []string
}

// Generator produces challenge puzzles with uniform random kind
// selection.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a generator backed by its own PRNG.
func NewGenerator() *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// Generate produces one puzzle of a uniformly chosen kind.
func (g *Generator) Generate() Puzzle {
	switch Kind(g.rng.IntN(3)) {
	case KindArithmetic:
		return g.arithmetic()
	case KindVisualCount:
		return g.visualCount()
	default:
		return g.visualFind()
	}
}

// arithmetic poses a + or - question over operands in [1,10]. Subtraction
// always puts the larger operand first so the result stays non-negative.
func (g *Generator) arithmetic() Puzzle {
	a := g.rng.IntN(10) + 1
	b := g.rng.IntN(10) + 1

	var answer int
	var question string
	if g.rng.IntN(2) == 0 {
		answer = a + b
		question = fmt.Sprintf("How much is %d + %d?", a, b)
	} else {
		if a < b {
			a, b = b, a
		}
		answer = a - b
		question = fmt.Sprintf("How much is %d - %d?", a, b)
	}

	return Puzzle{
		Kind:     KindArithmetic,
		Question: question,
		Answer:   strconv.Itoa(answer),
		Options:  g.numericOptions(answer, 0, 20),
	}
}

// visualCount renders 2-6 instances of a target symbol interleaved with
// 1-3 instances each of three other symbols, shuffled, and asks for the
// target count.
func (g *Generator) visualCount() Puzzle {
	target := fruitSymbols[g.rng.IntN(len(fruitSymbols))]
	count := g.rng.IntN(5) + 2
	others := g.sampleOthers(fruitSymbols, target, 3)

	display := make([]string, 0, count+9)
	for i := 0; i < count; i++ {
		display = append(display, target)
	}
	for _, sym := range others {
		n := g.rng.IntN(3) + 1
		for i := 0; i < n; i++ {
			display = append(display, sym)
		}
	}
	g.rng.Shuffle(len(display), func(i, j int) {
		display[i], display[j] = display[j], display[i]
	})

	return Puzzle{
		Kind:     KindVisualCount,
		Question: fmt.Sprintf("How many %s do you see?\n%s", target, strings.Join(display, "")),
		Answer:   strconv.Itoa(count),
		Options:  g.numericOptions(count, 1, 8),
	}
}

// visualFind asks to pick the target symbol out of four.
func (g *Generator) visualFind() Puzzle {
	target := animalSymbols[g.rng.IntN(len(animalSymbols))]
	options := append([]string{target}, g.sampleOthers(animalSymbols, target, 3)...)
	g.rng.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})

	return Puzzle{
		Kind:     KindVisualFind,
		Question: fmt.Sprintf("Find %s among the options:", target),
		Answer:   target,
		Options:  options,
	}
}

// numericOptions returns 4 shuffled options: the answer plus three unique
// distractors drawn from [lo,hi], none equal to each other or the answer.
func (g *Generator) numericOptions(answer, lo, hi int) []string {
	seen := map[int]bool{answer: true}
	options := []int{answer}
	for len(options) < 4 {
		fake := g.rng.IntN(hi-lo+1) + lo
		if seen[fake] {
			continue
		}
		seen[fake] = true
		options = append(options, fake)
	}
	g.rng.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})

	out := make([]string, len(options))
	for i, o := range options {
		out[i] = strconv.Itoa(o)
	}
	return out
}

// sampleOthers draws n distinct symbols from pool, excluding the target.
func (g *Generator) sampleOthers(pool []string, target string, n int) []string {
	candidates := make([]string, 0, len(pool)-1)
	for _, s := range pool {
		if s != target {
			candidates = append(candidates, s)
		}
	}
	g.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	return candidates[:n]
}
