package testutil

// FixedFlowGenerator returns the same flow token for every call, so event
// IDs depend only on seq and content.
//
// If token is empty, Generate returns "test-flow".
type FixedFlowGenerator struct {
	token string
}

// NewFixedFlowGenerator creates a generator for token.
func NewFixedFlowGenerator(token string) *FixedFlowGenerator {
	if token == "" {
		token = "test-flow"
	}
	return &FixedFlowGenerator{token: token}
}

// Generate returns the fixed token.
func (g *FixedFlowGenerator) Generate() string {
	return g.token
}
