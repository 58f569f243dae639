package assistant

import (
	"math/rand/v2"
	"slices"
	"sync"
)

// RandSource picks an index in [0, n).
type RandSource interface {
	IntN(n int) int
}

// RandFunc adapts a function to RandSource.
type RandFunc func(n int) int

func (f RandFunc) IntN(n int) int { return f(n) }

// FixedRand always picks index i (clamped to the candidate count).
func FixedRand(i int) RandSource {
	return RandFunc(func(n int) int {
		if i < 0 {
			return 0
		}
		if i >= n {
			return n - 1
		}
		return i
	})
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// NewSeededRand returns a goroutine-safe deterministic source.
func NewSeededRand(seed uint64) RandSource {
	return &lockedRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Reply is the content of one agent message.
type Reply struct {
	Text      string
	Category  Category
	FollowUps []string
}

// Selector picks one template for a category.
type Selector struct {
	bank *Bank
	rand RandSource
}

// NewSelector creates a selector. A nil bank uses the default bank and a nil
// source uses the process-wide random generator.
func NewSelector(bank *Bank, src RandSource) *Selector {
	if bank == nil {
		bank = DefaultBank()
	}
	if src == nil {
		src = globalRand{}
	}
	return &Selector{bank: bank, rand: src}
}

// Select draws one of the category's own templates uniformly.
func (s *Selector) Select(c Category) Reply {
	entry := s.bank.Entry(c)
	idx := 0
	if n := len(entry.Templates); n > 1 {
		idx = s.rand.IntN(n)
		if idx < 0 || idx >= n {
			idx = 0
		}
	}
	reply := Reply{
		Text:     entry.Templates[idx],
		Category: entry.Category,
	}
	if len(entry.FollowUps) > 0 {
		reply.FollowUps = slices.Clone(entry.FollowUps)
	}
	return reply
}
