package embeddings

import "strings"

// ChunkingConfig controls word-window chunking for ingestion.
type ChunkingConfig struct {
	SizeWords    int `yaml:"size_words" mapstructure:"size_words"`
	OverlapWords int `yaml:"overlap_words" mapstructure:"overlap_words"`
}

// DefaultChunkingConfig returns 500-word windows with 50 words of overlap.
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{SizeWords: 500, OverlapWords: 50}
}

// Chunker splits long documents into overlapping word windows.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(cfg ChunkingConfig) *Chunker {
	def := DefaultChunkingConfig()
	if cfg.SizeWords <= 0 {
		cfg.SizeWords = def.SizeWords
	}
	if cfg.OverlapWords < 0 || cfg.OverlapWords >= cfg.SizeWords {
		cfg.OverlapWords = cfg.SizeWords / 10
	}
	return &Chunker{size: cfg.SizeWords, overlap: cfg.OverlapWords}
}

// Chunk returns the windows for text. Whitespace is normalised; a text that
// fits in one window yields a single chunk, and blank text yields none.
func (c *Chunker) Chunk(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= c.size {
		return []string{strings.Join(words, " ")}
	}
	step := c.size - c.overlap
	var chunks []string
	for i := 0; i < len(words); i += step {
		end := i + c.size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
