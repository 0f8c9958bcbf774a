// Package testutil provides deterministic building blocks for tests: a
// constant batch-token generator, a resettable logical clock, and a seeded
// random batch generator for the equivalence properties.
package testutil

// FixedTokenGenerator generates the same batch token every time.
//
// The same scenario with the same FixedTokenGenerator produces
// byte-identical traces. Unlike engine.FixedGenerator, which returns tokens
// in sequence and panics on exhaustion, this generator never runs out;
// useful when a test processes an unknown number of batches.
//
// Thread-safety: FixedTokenGenerator is stateless and safe for concurrent
// use.
type FixedTokenGenerator struct {
	token string
}

// NewFixedTokenGenerator creates a new fixed batch token generator.
//
// If token is empty, Generate() returns "test-batch-default".
func NewFixedTokenGenerator(token string) *FixedTokenGenerator {
	if token == "" {
		token = "test-batch-default"
	}
	return &FixedTokenGenerator{token: token}
}

// Generate returns the fixed batch token.
//
// Implements engine.TokenGenerator.
func (g *FixedTokenGenerator) Generate() string {
	return g.token
}
