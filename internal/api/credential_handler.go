package api

import (
	"encoding/json"
	"net/http"
)

// ListCredentials возвращает имена сохранённых секретов пользователя.
// Значения никогда не отдаются.
// GET /api/v1/users/{userID}/credentials
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	if h.credentials == nil {
		ServiceUnavailable(w, "credential store is not configured")
		return
	}

	names, err := h.credentials.ListNames(r.Context(), r.PathValue("userID"))
	if HandleRepoError(w, h.logger, err, "") {
		return
	}
	if names == nil {
		names = []string{}
	}

	List(w, names, len(names))
}

// PutCredential сохраняет или заменяет секрет.
// PUT /api/v1/users/{userID}/credentials/{name}
func (h *Handler) PutCredential(w http.ResponseWriter, r *http.Request) {
	if h.credentials == nil {
		ServiceUnavailable(w, "credential store is not configured")
		return
	}

	var req PutCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	userID, name := r.PathValue("userID"), r.PathValue("name")
	if userID == "" || name == "" {
		BadRequest(w, "user id and credential name are required")
		return
	}

	if err := h.credentials.Put(r.Context(), userID, name, req.Value); HandleRepoError(w, h.logger, err, "") {
		return
	}

	NoContent(w)
}

// DeleteCredential удаляет секрет.
// DELETE /api/v1/users/{userID}/credentials/{name}
func (h *Handler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	if h.credentials == nil {
		ServiceUnavailable(w, "credential store is not configured")
		return
	}

	err := h.credentials.Delete(r.Context(), r.PathValue("userID"), r.PathValue("name"))
	if HandleRepoError(w, h.logger, err, "credential not found") {
		return
	}

	NoContent(w)
}
