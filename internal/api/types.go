package api

// HealthResponse is the payload of the health endpoint. GeminiConfigured
// tells the frontend whether a server-side Gemini key exists or the client
// has to supply its own.
type HealthResponse struct {
	Status           string `json:"status"`
	GeminiConfigured bool   `json:"gemini_configured"`
}
