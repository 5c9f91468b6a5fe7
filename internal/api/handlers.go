package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/orchidream/orchidream/internal/core"
	"github.com/orchidream/orchidream/internal/store"
	"github.com/orchidream/orchidream/internal/transcribe"
)

const maxAudioBytes = 10 << 20

// Messages shown by the entry form's dictation control.
const (
	noTranscriptMessage        = "No transcription result."
	transcriptionFailedMessage = "Transcription failed."
)

type APIHandler struct {
	journal     *core.JournalService
	chat        *core.ChatService
	transcriber transcribe.Transcriber
}

// NewAPIHandler wires the services behind the routes. transcriber may be nil
// when no Speech key is configured.
func NewAPIHandler(journal *core.JournalService, chat *core.ChatService, transcriber transcribe.Transcriber) *APIHandler {
	return &APIHandler{
		journal:     journal,
		chat:        chat,
		transcriber: transcriber,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// respondError maps service and store failures onto status codes. action
// completes "Failed to ..." in the 5xx body.
func respondError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrEmptyMessage),
		errors.Is(err, store.ErrInvalidQuery):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, core.ErrDreamNotFound):
		http.Error(w, "Dream not found", http.StatusNotFound)
	case errors.Is(err, store.ErrInit), errors.Is(err, store.ErrNotInitialized):
		log.Printf("Store unavailable while trying to %s: %v", action, err)
		http.Error(w, "Database unavailable", http.StatusServiceUnavailable)
	default:
		log.Printf("Error trying to %s: %v", action, err)
		http.Error(w, "Failed to "+action, http.StatusInternalServerError)
	}
}

func dreamID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "dreamID"), 10, 64)
}

// parseFetchOptions reads the journal list filters from the query string.
// date takes precedence over start_date/end_date.
func parseFetchOptions(q url.Values) store.FetchOptions {
	opts := store.FetchOptions{
		SearchQuery:         q.Get("q"),
		LucidityLevelFilter: q.Get("lucidity"),
		SortBy:              store.SortField(q.Get("sort_by")),
		SortOrder:           store.SortOrder(q.Get("sort_order")),
	}
	if date := q.Get("date"); date != "" {
		opts.DateFilter = store.ExactDate(date)
	} else if start, end := q.Get("start_date"), q.Get("end_date"); start != "" || end != "" {
		opts.DateFilter = store.DateRange(start, end)
	}
	for _, raw := range q["tags"] {
		opts.TagsFilter = append(opts.TagsFilter, strings.Split(raw, ",")...)
	}
	return opts
}

type HealthResponse struct {
	Status string `json:"status"`
	Dreams int    `json:"dreams"`
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	n, err := h.journal.Count(r.Context())
	if err != nil {
		respondError(w, err, "count dreams")
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Dreams: n})
}

func (h *APIHandler) ListDreamsHandler(w http.ResponseWriter, r *http.Request) {
	dreams, err := h.journal.List(r.Context(), parseFetchOptions(r.URL.Query()))
	if err != nil {
		respondError(w, err, "list dreams")
		return
	}
	writeJSON(w, http.StatusOK, dreams)
}

func (h *APIHandler) CreateDreamHandler(w http.ResponseWriter, r *http.Request) {
	var req store.NewDreamEntry
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	entry, err := h.journal.Create(r.Context(), req)
	if err != nil {
		respondError(w, err, "save dream")
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *APIHandler) GetDreamHandler(w http.ResponseWriter, r *http.Request) {
	id, err := dreamID(r)
	if err != nil {
		http.Error(w, "Invalid dream ID", http.StatusBadRequest)
		return
	}

	entry, err := h.journal.Get(r.Context(), id)
	if err != nil {
		respondError(w, err, "get dream")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *APIHandler) UpdateDreamHandler(w http.ResponseWriter, r *http.Request) {
	id, err := dreamID(r)
	if err != nil {
		http.Error(w, "Invalid dream ID", http.StatusBadRequest)
		return
	}

	var req store.DreamUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.journal.Update(r.Context(), id, req); err != nil {
		respondError(w, err, "update dream")
		return
	}
	entry, err := h.journal.Get(r.Context(), id)
	if err != nil {
		respondError(w, err, "get dream")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *APIHandler) DeleteDreamHandler(w http.ResponseWriter, r *http.Request) {
	id, err := dreamID(r)
	if err != nil {
		http.Error(w, "Invalid dream ID", http.StatusBadRequest)
		return
	}

	if err := h.journal.Delete(r.Context(), id); err != nil {
		respondError(w, err, "delete dream")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.chat.LoadHistory(r.Context()))
}

func (h *APIHandler) ClearConversationHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.Clear(r.Context()); err != nil {
		respondError(w, err, "clear conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

type PostMessageResponse struct {
	TurnID string `json:"turnId"`
	Reply  string `json:"reply"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	ex, err := h.chat.Send(r.Context(), req.Content)
	if err != nil {
		respondError(w, err, "post message")
		return
	}
	writeJSON(w, http.StatusOK, PostMessageResponse{TurnID: ex.TurnID, Reply: ex.Reply.Content})
}

type TranscriptionResponse struct {
	Transcript string            `json:"transcript,omitempty"`
	Dream      *store.DreamEntry `json:"dream,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// TranscribeHandler transcribes a raw LINEAR16 body. With ?dream_id= the
// transcript is also appended to that entry's description.
func (h *APIHandler) TranscribeHandler(w http.ResponseWriter, r *http.Request) {
	if h.transcriber == nil {
		writeJSON(w, http.StatusServiceUnavailable, TranscriptionResponse{Error: "Transcription is not configured."})
		return
	}

	var dreamID int64
	raw := r.URL.Query().Get("dream_id")
	if raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "Invalid dream ID", http.StatusBadRequest)
			return
		}
		dreamID = id
	}

	audio, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, TranscriptionResponse{Error: "Audio is too large."})
		return
	}

	transcript, err := h.transcriber.Transcribe(r.Context(), audio)
	switch {
	case errors.Is(err, transcribe.ErrNoTranscript), errors.Is(err, transcribe.ErrEmptyAudio):
		writeJSON(w, http.StatusUnprocessableEntity, TranscriptionResponse{Error: noTranscriptMessage})
		return
	case err != nil:
		log.Printf("Error transcribing audio: %v", err)
		writeJSON(w, http.StatusBadGateway, TranscriptionResponse{Error: transcriptionFailedMessage})
		return
	}

	resp := TranscriptionResponse{Transcript: transcript}
	if raw != "" {
		entry, err := h.journal.AppendTranscriptToEntry(r.Context(), dreamID, transcript)
		if err != nil {
			respondError(w, err, "append transcript")
			return
		}
		resp.Dream = entry
	}
	writeJSON(w, http.StatusOK, resp)
}
