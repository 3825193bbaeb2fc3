// Package helpers reúne utilidades compartidas por los controllers.
package helpers

import (
	"encoding/json"
	"net/http"

	httperrors "github.com/dropDatabas3/crossjohn/internal/http/errors"
)

// WriteJSON serializa v con el status indicado.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON parsea el body (limitado a 32KB) dentro de dst. Escribe el
// error 400 y retorna false si el JSON es inválido.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 32<<10)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("invalid JSON"))
		return false
	}
	return true
}
