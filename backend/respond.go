package backend

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/bh-premnath-git/bhadminui/internal/errors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetail writes the backend's error shape, {"detail": msg}.
func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func (b *Backend) writeRepoError(w http.ResponseWriter, err error) {
	if errors.Is(err, apperrors.ErrNotFound) {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	b.log.Err(err).Msg("repository error")
	writeDetail(w, http.StatusInternalServerError, "Internal server error.")
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body.")
		return false
	}
	return true
}

func writeDeleted(w http.ResponseWriter, id string) {
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}
