package model

import "encoding/json"

// If you want a helper for JSON unmarshal:
func JSONUnmarshal(data []byte, out interface{}) error {
	return json.Unmarshal(data, out)
}

// ErrorBody is the structured error payload returned by the gym API.
//
//	{"status": "error", "message": "token.expired"}
type ErrorBody struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message"`
}

// User is the profile of the signed-in account.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Avatar    string `json:"avatar,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// SignInRequest is the body of POST /sessions.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInResponse is returned by POST /sessions.
type SignInResponse struct {
	User         User   `json:"user"`
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Exercise is one entry of GET /exercises/bygroup/{group}.
type Exercise struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Series      int    `json:"series"`
	Repetitions int    `json:"repetitions"`
	Group       string `json:"group"`
	Demo        string `json:"demo,omitempty"`
	Thumb       string `json:"thumb,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}
