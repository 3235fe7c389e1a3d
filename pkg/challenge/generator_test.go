package challenge

import (
	"strconv"
	"strings"
	"testing"
)

func TestGenerate_OptionsContainAnswerExactlyOnce(t *testing.T) {
	gen := NewGenerator()

	for i := 0; i < 200; i++ {
		p := gen.Generate()

		found := 0
		seen := make(map[string]int)
		for _, opt := range p.Options {
			seen[opt]++
			if opt == p.Answer {
				found++
			}
		}
		if found != 1 {
			t.Fatalf("answer %q appears %d times in options %v", p.Answer, found, p.Options)
		}
		for opt, n := range seen {
			if n != 1 {
				t.Fatalf("option %q appears %d times in %v", opt, n, p.Options)
			}
		}
		if len(p.Options) != 4 {
			t.Fatalf("expected 4 options, got %d", len(p.Options))
		}
	}
}

func TestGenerate_ArithmeticNonNegative(t *testing.T) {
	gen := NewGenerator()

	for i := 0; i < 200; i++ {
		p := gen.arithmetic()

		answer, err := strconv.Atoi(p.Answer)
		if err != nil {
			t.Fatalf("non-numeric arithmetic answer %q", p.Answer)
		}
		if answer < 0 {
			t.Fatalf("negative arithmetic answer %d for question %q", answer, p.Question)
		}
		if answer > 20 {
			t.Fatalf("answer %d out of range for operands in [1,10]", answer)
		}
		for _, opt := range p.Options {
			v, err := strconv.Atoi(opt)
			if err != nil {
				t.Fatalf("non-numeric option %q", opt)
			}
			if v < 0 || v > 20 {
				t.Fatalf("distractor %d outside [0,20]", v)
			}
		}
	}
}

func TestGenerate_VisualCountWithinRange(t *testing.T) {
	gen := NewGenerator()

	for i := 0; i < 200; i++ {
		p := gen.visualCount()

		count, err := strconv.Atoi(p.Answer)
		if err != nil {
			t.Fatalf("non-numeric count answer %q", p.Answer)
		}
		if count < 2 || count > 6 {
			t.Fatalf("target count %d outside [2,6]", count)
		}
		for _, opt := range p.Options {
			v, _ := strconv.Atoi(opt)
			if v < 1 || v > 8 {
				t.Fatalf("count distractor %d outside [1,8]", v)
			}
		}

		// The rendered line must contain exactly `count` target symbols.
		parts := strings.SplitN(p.Question, "\n", 2)
		if len(parts) != 2 {
			t.Fatalf("expected question with rendered symbols, got %q", p.Question)
		}
	}
}

func TestGenerate_VisualFindDistinctSymbols(t *testing.T) {
	gen := NewGenerator()

	for i := 0; i < 200; i++ {
		p := gen.visualFind()

		if len(p.Options) != 4 {
			t.Fatalf("expected 4 symbols, got %d", len(p.Options))
		}
		seen := make(map[string]bool)
		for _, opt := range p.Options {
			if seen[opt] {
				t.Fatalf("duplicate symbol %q in %v", opt, p.Options)
			}
			seen[opt] = true
		}
		if !seen[p.Answer] {
			t.Fatalf("target %q missing from options %v", p.Answer, p.Options)
		}
	}
}
