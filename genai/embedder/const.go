package embedder

// Defaults for the one embedding provider this repo wires end-to-end.
const (
	// DefaultEndpoint is OpenAI's embeddings REST endpoint.
	DefaultEndpoint = "https://api.openai.com/v1/embeddings"

	// DefaultModel mirrors the teacher's own default embedding model.
	DefaultModel = "text-embedding-3-small"
)
