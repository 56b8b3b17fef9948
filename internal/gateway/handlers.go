// ABOUTME: Health, feedback, and saved-answer HTTP handlers
// ABOUTME: Saved answers are subscriber-scoped; feedback accepts passphrase callers too

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lexgate/lex-gateway/internal/auth"
	"github.com/lexgate/lex-gateway/internal/store"
)

const defaultListLimit = 50

type corpusHealth struct {
	Collection string `json:"collection"`
	Documents  uint64 `json:"documents"`
	Error      string `json:"error,omitempty"`
}

type healthResponse struct {
	Status  string                  `json:"status"`
	Corpora map[string]corpusHealth `json:"corpora"`
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Corpora: make(map[string]corpusHealth)}

	for source, collection := range g.collections {
		h := corpusHealth{Collection: collection}
		count, err := g.searcher.Count(r.Context(), collection)
		if err != nil {
			g.logger.Warn("corpus count failed", "source", source, "error", err)
			h.Error = "unavailable"
			resp.Status = "degraded"
		} else {
			h.Documents = count
		}
		resp.Corpora[string(source)] = h
	}

	writeJSON(w, http.StatusOK, resp)
}

type feedbackRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Source   string `json:"source"`
	Language string `json:"language"`
	Rating   int    `json:"rating"`
	Comment  string `json:"comment,omitempty"`
}

func (g *Gateway) handleFeedback(w http.ResponseWriter, r *http.Request) {
	grant, err := g.gate.Authorize(r.Context(), auth.Credentials{
		Passphrase:  r.Header.Get("X-Access-Key"),
		BearerToken: bearerToken(r),
	})
	if err != nil {
		g.writeAuthError(w, err)
		return
	}

	var body feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Question == "" || body.Answer == "" {
		writeError(w, http.StatusBadRequest, "question and answer are required")
		return
	}
	if body.Rating < 1 || body.Rating > 5 {
		writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}

	fb := &store.Feedback{
		ID:        uuid.NewString(),
		OwnerID:   grant.SubscriberID(),
		Question:  body.Question,
		Answer:    body.Answer,
		Source:    body.Source,
		Language:  body.Language,
		Rating:    body.Rating,
		Comment:   body.Comment,
		CreatedAt: time.Now().UTC(),
	}
	if err := g.store.SaveFeedback(r.Context(), fb); err != nil {
		g.logger.Error("saving feedback failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": fb.ID})
}

type feedbackItem struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Source    string    `json:"source"`
	Language  string    `json:"language"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (g *Gateway) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	sub, ok := g.identify(w, r)
	if !ok {
		return
	}

	entries, err := g.store.ListFeedback(r.Context(), sub.ID, defaultListLimit)
	if err != nil {
		g.logger.Error("listing feedback failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]feedbackItem, 0, len(entries))
	for _, fb := range entries {
		items = append(items, feedbackItem{
			ID:        fb.ID,
			Question:  fb.Question,
			Answer:    fb.Answer,
			Source:    fb.Source,
			Language:  fb.Language,
			Rating:    fb.Rating,
			Comment:   fb.Comment,
			CreatedAt: fb.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"feedback": items})
}

type saveAnswerRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Source   string `json:"source"`
	Language string `json:"language"`
	Category string `json:"category,omitempty"`
}

// identify resolves the subscriber for the owner-scoped saved-answer
// endpoints. Passphrase access carries no owner, so a bearer token is required.
func (g *Gateway) identify(w http.ResponseWriter, r *http.Request) (*store.Subscriber, bool) {
	sub, err := g.gate.Identify(r.Context(), bearerToken(r))
	if err != nil {
		if errors.Is(err, auth.ErrAuthenticationRequired) {
			writeError(w, http.StatusUnauthorized, "authentication required")
		} else {
			g.logger.Error("identify failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return nil, false
	}
	return sub, true
}

func (g *Gateway) handleSaveAnswer(w http.ResponseWriter, r *http.Request) {
	sub, ok := g.identify(w, r)
	if !ok {
		return
	}

	var body saveAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Question == "" || body.Answer == "" {
		writeError(w, http.StatusBadRequest, "question and answer are required")
		return
	}

	sa := &store.SavedAnswer{
		ID:        uuid.NewString(),
		OwnerID:   sub.ID,
		Question:  body.Question,
		Answer:    body.Answer,
		Source:    body.Source,
		Language:  body.Language,
		Category:  body.Category,
		CreatedAt: time.Now().UTC(),
	}
	if err := g.store.SaveAnswer(r.Context(), sa); err != nil {
		g.logger.Error("saving answer failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": sa.ID})
}

type savedAnswerItem struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Source    string    `json:"source"`
	Language  string    `json:"language"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (g *Gateway) handleListSaved(w http.ResponseWriter, r *http.Request) {
	sub, ok := g.identify(w, r)
	if !ok {
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}

	answers, err := g.store.ListSavedAnswers(r.Context(), sub.ID, r.URL.Query().Get("category"), limit)
	if err != nil {
		g.logger.Error("listing saved answers failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]savedAnswerItem, 0, len(answers))
	for _, sa := range answers {
		items = append(items, savedAnswerItem{
			ID:        sa.ID,
			Question:  sa.Question,
			Answer:    sa.Answer,
			Source:    sa.Source,
			Language:  sa.Language,
			Category:  sa.Category,
			CreatedAt: sa.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"saved": items})
}

func (g *Gateway) handleDeleteSaved(w http.ResponseWriter, r *http.Request) {
	sub, ok := g.identify(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if err := g.store.DeleteSavedAnswer(r.Context(), sub.ID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "saved answer not found")
			return
		}
		g.logger.Error("deleting saved answer failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
