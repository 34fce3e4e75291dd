package models

// StandardResponse wraps every JSON body the API returns.
type StandardResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// KnowledgeContext is a retrieved chunk as exposed to clients. Score is the
// cosine distance, lower is closer.
type KnowledgeContext struct {
	DocumentID       string  `json:"document_id"`
	ChunkIndex       int     `json:"chunk_index"`
	Content          string  `json:"content"`
	Score            float64 `json:"score"`
	StoredFilename   string  `json:"stored_filename"`
	OriginalFilename string  `json:"original_filename"`
}

type QueryRequest struct {
	Question       string   `json:"question"`
	TopK           int      `json:"top_k"`
	DocumentID     *string  `json:"document_id,omitempty"`
	DocumentIDs    []string `json:"document_ids,omitempty"`
	GenerateAnswer bool     `json:"generate_answer"`
}

type QueryResponse struct {
	Answer   *string            `json:"answer"`
	Contexts []KnowledgeContext `json:"contexts"`
}

type ConversationRequest struct {
	Question        string   `json:"question"`
	TopK            int      `json:"top_k"`
	DocumentID      *string  `json:"document_id,omitempty"`
	DocumentIDs     []string `json:"document_ids,omitempty"`
	ConversationID  *string  `json:"conversation_id,omitempty"`
	MaxContextChars int      `json:"max_context_chars"`
}

type UpdateGroupRequest struct {
	GroupID *string `json:"group_id"`
}

// DocumentFilter merges the single and multi document selectors.
func DocumentFilter(single *string, many []string) []string {
	seen := make(map[string]bool, len(many)+1)
	var out []string
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	if single != nil {
		add(*single)
	}
	for _, id := range many {
		add(id)
	}
	return out
}
