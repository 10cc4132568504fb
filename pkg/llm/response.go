package llm

// ErrorResponse is the JSON body of every non-streaming failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ImageResponse is the JSON body of a successful POST /api/image.
type ImageResponse struct {
	Success bool     `json:"success"`
	Images  []string `json:"images"`
	Count   int      `json:"count"`
}

// Model describes a selectable chat model.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ChatModels is the catalog offered by GET /api/models.
var ChatModels = []Model{
	{ID: "llama-3.3-70b-versatile", Name: "LLaMA 3.3 70B", Description: "Most capable"},
	{ID: "llama-3.1-8b-instant", Name: "LLaMA 3.1 8B", Description: "Fast"},
	{ID: "mixtral-8x7b-32768", Name: "Mixtral 8x7B", Description: "Versatile"},
}
