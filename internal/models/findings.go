package models

import "time"

// RetrievedChunk is a single hit from the vector store.
type RetrievedChunk struct {
	Content         string                 `json:"content"`
	SimilarityScore float64                `json:"similarity_score"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	DocumentID      string                 `json:"document_id"`
	ChunkIndex      int                    `json:"chunk_index"`
}

// Title returns the chunk's title metadata, falling back to the document id.
func (c RetrievedChunk) Title() string {
	if t, ok := c.Metadata["title"].(string); ok && t != "" {
		return t
	}
	return c.DocumentID
}

// RetrievalResult is the output of the retrieval stage.
type RetrievalResult struct {
	Chunks          []RetrievedChunk `json:"chunks"`
	QueriesExecuted []string         `json:"queries_executed"`
	FiltersApplied  []string         `json:"filters_applied,omitempty"`
	TotalHits       int              `json:"total_hits"`
	ReturnedCount   int              `json:"returned_count"`
	Confidence      float64          `json:"confidence"`
	Summary         string           `json:"summary"`
	Notes           string           `json:"notes,omitempty"`
	ExecutionTime   time.Duration    `json:"execution_time"`
}

// SearchResult is one web search hit.
type SearchResult struct {
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	Snippet        string  `json:"snippet"`
	Provider       string  `json:"provider"`
	RelevanceScore float64 `json:"relevance_score"`
}

// SourceLink is a web source cited by the findings.
type SourceLink struct {
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	Provider       string  `json:"provider"`
	RelevanceScore float64 `json:"relevance_score"`
}

// RecommendedModule is a module idea extracted from web findings.
type RecommendedModule struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Topics      []string `json:"topics,omitempty"`
}

// WebFindings is the output of the web-search stage.
type WebFindings struct {
	Query                  string              `json:"query"`
	Summary                string              `json:"summary"`
	Topics                 []string            `json:"topics"`
	RecommendedModules     []RecommendedModule `json:"recommended_modules"`
	SourceLinks            []SourceLink        `json:"source_links"`
	Results                []SearchResult      `json:"results,omitempty"`
	LearningObjectives     []string            `json:"learning_objectives_found,omitempty"`
	Skills                 []string            `json:"skillset_recommendations,omitempty"`
	Confidence             float64             `json:"confidence"`
	ProviderUsed           string              `json:"provider_used"`
	ResultCount            int                 `json:"result_count"`
	HighQualityResultCount int                 `json:"high_quality_result_count"`
	FallbackUsed           bool                `json:"fallback_used"`
	ExecutionTime          time.Duration       `json:"execution_time"`
	Notes                  string              `json:"notes,omitempty"`
}

// ValidatorFeedback is stored per module for explanation lookups.
type ValidatorFeedback struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}
