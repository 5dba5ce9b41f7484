package server

// StartRunRequest is the POST /runs request body.
type StartRunRequest struct {
	Query    string `json:"query"`
	Cocktail string `json:"cocktail"`
}

// StartRunResponse is the POST /runs response body.
type StartRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// ArtifactListResponse is returned by GET /runs/{run_id}/artifacts.
type ArtifactListResponse struct {
	RunID string   `json:"run_id"`
	Files []string `json:"files"`
}

// ErrorResponse is a standard error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
