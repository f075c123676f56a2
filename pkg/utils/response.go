package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"dairy-billing/internal/apperr"
)

func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error writes {"error": ...} with the status the error taxonomy calls for.
func Error(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		var ioErr *apperr.IOError
		if !errors.As(err, &ioErr) {
			msg = "Internal server error"
		}
	}
	JSON(w, status, map[string]string{"error": msg})
}

// File sends a download with the given content type and file name.
func File(w http.ResponseWriter, contentType, name string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
