package ident

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// TokenGenerator mints history session ids.
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator mints UUIDv7 session ids. Their leading timestamp bits
// make sessions created later sort after earlier ones.
type UUIDv7Generator struct{}

func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator hands out a scripted list of session ids, for tests.
// Asking for more ids than were scripted panics.
type FixedGenerator struct {
	tokens []string
	next   atomic.Int64
}

func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

func (g *FixedGenerator) Generate() string {
	i := g.next.Add(1) - 1
	if i >= int64(len(g.tokens)) {
		panic(fmt.Sprintf("ident: fixed generator has only %d token(s)", len(g.tokens)))
	}
	return g.tokens[i]
}
