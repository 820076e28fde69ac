package embedder

// Config configures the single embedding provider this repo wires end to
// end (§6: the embedding provider is an external collaborator specified
// only through embed(model, input_text) -> vector[EXPECTED_DIM]). The
// teacher carries a three-provider factory (openai/ollama/vertexai) behind
// a shared base.Client; this repo keeps only the production-grade OpenAI
// path and drops the multi-provider indirection (see DESIGN.md).
type Config struct {
	Model     string `yaml:"model,omitempty" json:"model,omitempty"`
	APIKeyURL string `yaml:"apiKeyURL,omitempty" json:"apiKeyURL,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
}

// DefaultConfig fills in the provider's defaults.
func DefaultConfig() Config {
	return Config{Model: DefaultModel, Endpoint: DefaultEndpoint}
}
