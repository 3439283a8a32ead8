package handlers

import (
	"errors"
	"net/http"

	"audiolyrics/internal/apperr"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// errorBody maps err to the JSON body and status the client sees.
func errorBody(err error) (errorResponse, int) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		return errorResponse{Error: "Internal server error"}, http.StatusInternalServerError
	}

	body := errorResponse{Error: e.Message, Details: e.Details, Hint: e.Hint}
	switch e.Kind {
	case apperr.KindInvalidInput:
		return body, http.StatusBadRequest
	default:
		return body, http.StatusInternalServerError
	}
}

func (a *App) respondError(w http.ResponseWriter, err error) {
	body, status := errorBody(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "kind", apperr.KindOf(err), "error", err)
	}
	a.respondJSON(w, status, body)
}
