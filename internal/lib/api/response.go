package api

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Response is the uniform JSON envelope for non-payload replies.
type Response struct {
	Message string `json:"message"`
}

func DecodeJSON(r *http.Request, dest any) error {
	if r.Body == nil {
		return errors.New("request body required")
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	return dec.Decode(dest)
}

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func RespondMessage(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, Response{Message: message})
}
