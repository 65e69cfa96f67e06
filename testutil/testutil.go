package testutil

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Word returns a pseudo-random lowercase word of length n.
func (r *RNG) Word(n int) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	b.Grow(n)
	for range n {
		b.WriteByte(byte('a' + r.rand.Intn(26)))
	}
	return b.String()
}

// Pick returns a pseudo-random element of values.
func (r *RNG) Pick(values []string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return values[r.rand.Intn(len(values))]
}

// CSVSpec describes the shape of a generated dataset.
type CSVSpec struct {
	// Rows is the number of data rows, header not counted.
	Rows int

	// Columns are the header names. The first column is filled with the
	// row number, making it a unique key; the rest with random words.
	Columns []string

	// StatusColumn, when non-empty, names a column filled from
	// StatusValues instead of random words. Use it to drive flag rules.
	StatusColumn string
	StatusValues []string

	// NoHeader omits the header row.
	NoHeader bool
}

// GenerateCSV renders a deterministic CSV dataset from spec using rng.
func GenerateCSV(rng *RNG, spec CSVSpec) string {
	var b strings.Builder

	if !spec.NoHeader {
		b.WriteString(strings.Join(spec.Columns, ","))
		b.WriteByte('\n')
	}

	statusIdx := -1
	for i, name := range spec.Columns {
		if name == spec.StatusColumn {
			statusIdx = i
		}
	}

	fields := make([]string, len(spec.Columns))
	for row := range spec.Rows {
		for i := range fields {
			switch {
			case i == 0:
				fields[i] = fmt.Sprintf("%d", row+1)
			case i == statusIdx:
				fields[i] = rng.Pick(spec.StatusValues)
			default:
				fields[i] = rng.Word(4 + rng.Intn(8))
			}
		}
		b.WriteString(strings.Join(fields, ","))
		b.WriteByte('\n')
	}

	return b.String()
}
