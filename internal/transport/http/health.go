package http

import (
	"net/http"
)

type healthResponse struct {
	Status string `json:"status"`
}

// HandleHealth reports service liveness.
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}
