// Package client provides the HTTP and WebSocket clients for the
// phonemulator backend. Types mirror the backend wire protocol without
// importing backend packages.
package client

// Credentials is the body of /register/ and /login/.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// PasswordUpdate is the body of PUT /user/{username}/.
type PasswordUpdate struct {
	Password string `json:"password"`
}

// PromptRequest is the body of POST /llm/generate.
type PromptRequest struct {
	Username string `json:"username"`
	Prompt   string `json:"prompt"`
}

// MessageResponse is returned by register, login and password update.
type MessageResponse struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message"`
}

// UserInfo is returned by GET /user/{username}/.
type UserInfo struct {
	Username string `json:"username"`
}

// LLMResponse is returned by POST /llm/generate.
type LLMResponse struct {
	Text string `json:"text"`
}
