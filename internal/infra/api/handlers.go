package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"meddoc-assistant/internal/domain"
	"meddoc-assistant/internal/domain/model"
	"meddoc-assistant/internal/usecase"
)

// ===== DTOs =====

type patientDTO struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type sessionDTO struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	DocumentID string    `json:"document_id"`
	PatientID  string    `json:"patient_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

type messageDTO struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	HTML      string    `json:"html,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type documentDTO struct {
	ID         string    `json:"id"`
	PatientID  string    `json:"patient_id"`
	Type       string    `json:"document_type"`
	Title      string    `json:"title"`
	FileName   string    `json:"file_name"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedAt time.Time `json:"uploaded_at"`
	Indexed    bool      `json:"indexed"`
}

func toPatientDTO(p *model.Patient) patientDTO {
	return patientDTO{ID: p.ID, DisplayName: p.DisplayName, CreatedAt: p.CreatedAt}
}

func toSessionDTO(s *model.ChatSession) sessionDTO {
	return sessionDTO{
		ID:         s.ID,
		UserID:     s.UserID,
		DocumentID: s.DocumentID,
		PatientID:  s.PatientID,
		Status:     string(s.Status),
		CreatedAt:  s.CreatedAt,
	}
}

func toMessageDTO(m model.ChatMessage) messageDTO {
	return messageDTO{
		ID:        m.ID,
		SessionID: m.SessionID,
		Role:      string(m.Role),
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
}

func toDocumentDTO(d *model.Document) documentDTO {
	return documentDTO{
		ID:         d.ID,
		PatientID:  d.PatientID,
		Type:       string(d.Type),
		Title:      d.Title,
		FileName:   d.FileName,
		SizeBytes:  d.SizeBytes,
		UploadedAt: d.UploadedAt,
		Indexed:    !d.IndexedAt.IsZero(),
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, domain.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrEmptyQuestion),
		errors.Is(err, domain.ErrQuestionTooLong),
		errors.Is(err, domain.ErrUnsupportedMedia):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrNoActiveSession):
		writeJSON(w, http.StatusPreconditionFailed, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrTurnInFlight):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// ===== Auth =====

type loginRequest struct {
	UserID string `json:"user_id"`
	APIKey string `json:"api_key"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if s.apiKey == "" {
		s.log.Error().Msg("API key is not configured")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if req.APIKey != s.apiKey || strings.TrimSpace(req.UserID) == "" {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	token, err := s.auth.Mint(w, req.UserID)
	if err != nil {
		http.Error(w, "Failed to mint token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// ===== Patients =====

type patientCreateRequest struct {
	DisplayName string `json:"display_name"`
}

func (s *Server) handlePatientCreate(w http.ResponseWriter, r *http.Request) {
	var req patientCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	p, err := s.patientUC.Create(r.Context(), req.DisplayName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPatientDTO(p))
}

func (s *Server) handlePatientList(w http.ResponseWriter, r *http.Request) {
	patients, err := s.patientUC.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]patientDTO, 0, len(patients))
	for _, p := range patients {
		out = append(out, toPatientDTO(p))
	}
	writeJSON(w, http.StatusOK, struct {
		Data []patientDTO `json:"data"`
	}{Data: out})
}

func (s *Server) handlePatientGet(w http.ResponseWriter, r *http.Request) {
	p, err := s.patientUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPatientDTO(p))
}

// ===== Context (session) =====

type contextOpenRequest struct {
	PatientID  string `json:"patient_id"`
	DocumentID string `json:"document_id"`
}

func (s *Server) handleContextOpen(w http.ResponseWriter, r *http.Request) {
	var req contextOpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	sess, err := s.sessionUC.OpenContext(r.Context(), UserID(r.Context()), req.PatientID, req.DocumentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionDTO(sess))
}

func (s *Server) handleContextClose(w http.ResponseWriter, r *http.Request) {
	if err := s.sessionUC.CloseContext(r.Context(), UserID(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleContextCurrent(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sessionUC.Current(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	resp := struct {
		Patient *patientDTO `json:"patient,omitempty"`
		Session *sessionDTO `json:"session,omitempty"`
	}{}
	if snap.Patient != nil {
		p := toPatientDTO(snap.Patient)
		resp.Patient = &p
	}
	if snap.Session != nil {
		sd := toSessionDTO(snap.Session)
		resp.Session = &sd
	}
	writeJSON(w, http.StatusOK, resp)
}

// ===== Chat =====

type askRequest struct {
	Question string `json:"question"`
}

type relayFrame struct {
	Type    string      `json:"type"`
	Content string      `json:"content,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message *messageDTO `json:"message,omitempty"`
}

// handleChatAsk runs one assistant turn and relays it downstream as
// Server-Sent Events. Precondition failures are reported as plain JSON
// before any stream bytes are written; once streaming, the turn always
// terminates with exactly one end or error frame.
func (s *Server) handleChatAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	userID := UserID(r.Context())

	if err := s.chatUC.CanSend(r.Context(), userID, req.Question); err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeFrame(w, flusher, relayFrame{Type: "start"})

	outcome, err := s.chatUC.Send(r.Context(), userID, req.Question, func(delta, _ string) {
		writeFrame(w, flusher, relayFrame{Type: "content", Content: delta})
	})
	if err != nil {
		writeFrame(w, flusher, relayFrame{Type: "error", Error: err.Error()})
		return
	}
	dto := toMessageDTO(*outcome)
	writeFrame(w, flusher, relayFrame{Type: "end", Message: &dto})
}

func writeFrame(w http.ResponseWriter, flusher http.Flusher, f relayFrame) {
	b, err := json.Marshal(f)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", b)
	flusher.Flush()
}

func (s *Server) handleChatMessages(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientID")
	msgs, err := s.chatUC.Messages(r.Context(), patientID)
	if err != nil {
		writeError(w, err)
		return
	}
	renderHTML := r.URL.Query().Get("format") == "html"
	out := make([]messageDTO, 0, len(msgs))
	for _, m := range msgs {
		dto := toMessageDTO(m)
		if renderHTML && m.Role == model.RoleAssistant && s.renderer != nil {
			if html, err := s.renderer.Render(m.Content); err == nil {
				dto.HTML = html
			}
		}
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, struct {
		Data []messageDTO `json:"data"`
	}{Data: out})
}

func (s *Server) handleChatClear(w http.ResponseWriter, r *http.Request) {
	if err := s.chatUC.ClearHistory(r.Context(), chi.URLParam(r, "patientID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChatDraft(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"draft": s.chatUC.Draft(UserID(r.Context())),
	})
}

// ===== Documents =====

func (s *Server) handleDocumentUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		http.Error(w, "Invalid multipart body", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing file part", http.StatusBadRequest)
		return
	}
	defer file.Close()

	doc, err := s.documentUC.Upload(r.Context(), usecase.UploadRequest{
		PatientID: r.FormValue("patient_id"),
		Type:      model.DocumentType(r.FormValue("document_type")),
		Title:     r.FormValue("title"),
		FileName:  header.Filename,
		Size:      header.Size,
		Body:      file,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDocumentDTO(doc))
}

func (s *Server) handleDocumentList(w http.ResponseWriter, r *http.Request) {
	docs, err := s.documentUC.ListByPatient(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]documentDTO, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDocumentDTO(d))
	}
	writeJSON(w, http.StatusOK, struct {
		Data []documentDTO `json:"data"`
	}{Data: out})
}

func (s *Server) handleDocumentGet(w http.ResponseWriter, r *http.Request) {
	doc, err := s.documentUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentDTO(doc))
}

func (s *Server) handleDocumentDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.documentUC.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDocumentSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	results, err := s.documentUC.Search(r.Context(), model.SearchQuery{
		Text:      q.Get("q"),
		PatientID: q.Get("patient_id"),
		Type:      model.DocumentType(q.Get("document_type")),
		Limit:     limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	type hit struct {
		Document documentDTO `json:"document"`
		Score    float64     `json:"score"`
	}
	out := make([]hit, 0, len(results))
	for _, res := range results {
		out = append(out, hit{Document: toDocumentDTO(res.Document), Score: res.Score})
	}
	writeJSON(w, http.StatusOK, struct {
		Data []hit `json:"data"`
	}{Data: out})
}
