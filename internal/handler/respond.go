package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ewhitaker/larder/internal/auth"
	"github.com/ewhitaker/larder/internal/fault"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFault maps typed store/engine failures to HTTP responses. Conflict
// responses carry the authoritative record so the client can rebase instead
// of guessing.
func writeFault(w http.ResponseWriter, err error) {
	var vc *fault.VersionConflict
	if errors.As(err, &vc) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":   "version conflict",
			"current": vc.Current,
		})
		return
	}
	var nf *fault.NotFound
	if errors.As(err, &nf) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": nf.Error(),
		})
		return
	}
	var de *fault.DuplicateExists
	if errors.As(err, &de) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":    "duplicate exists",
			"existing": de.Existing,
		})
		return
	}
	var vf *fault.ValidationFailed
	if errors.As(err, &vf) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": vf.Error(),
		})
		return
	}
	var ta *fault.TransactionAborted
	if errors.As(err, &ta) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": ta.Error(),
		})
		return
	}
	if errors.Is(err, auth.ErrForbidden) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}
