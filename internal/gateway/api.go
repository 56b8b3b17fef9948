// ABOUTME: Ask endpoint handling: gate, route, orchestrate, then JSON or SSE response
// ABOUTME: Maps domain errors to HTTP statuses and shapes the answer envelope on the wire

package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/lexgate/lex-gateway/internal/aggregate"
	"github.com/lexgate/lex-gateway/internal/auth"
	"github.com/lexgate/lex-gateway/internal/backend"
	"github.com/lexgate/lex-gateway/internal/query"
	"github.com/lexgate/lex-gateway/internal/stream"
)

// askRequest is the wire shape of POST /api/ask.
type askRequest struct {
	Question          string   `json:"question"`
	Language          string   `json:"language"`
	Source            string   `json:"source,omitempty"`
	Sources           []string `json:"sources,omitempty"`
	Stream            bool     `json:"stream,omitempty"`
	HTML              bool     `json:"html,omitempty"`
	ConversationToken string   `json:"conversation_token,omitempty"`
	Passphrase        string   `json:"passphrase,omitempty"`
}

// askResponse is the answer envelope on the wire. Type is set to "result"
// only on streaming terminal frames.
type askResponse struct {
	Type              string             `json:"type,omitempty"`
	Answer            string             `json:"answer"`
	AnswerHTML        string             `json:"answer_html,omitempty"`
	Citations         []backend.Citation `json:"citations"`
	ResponseTimeMs    int64              `json:"response_time_ms"`
	ConversationToken string             `json:"conversation_token"`
	Error             string             `json:"error,omitempty"`
}

func (g *Gateway) handleAsk(w http.ResponseWriter, r *http.Request) {
	var body askRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	grant, err := g.gate.Authorize(r.Context(), auth.Credentials{
		Passphrase:  firstNonEmpty(body.Passphrase, r.Header.Get("X-Access-Key")),
		BearerToken: bearerToken(r),
	})
	if err != nil {
		g.writeAuthError(w, err)
		return
	}

	req, plan, err := query.Parse(query.RawRequest{
		Question:          body.Question,
		Language:          body.Language,
		Source:            body.Source,
		Sources:           body.Sources,
		Stream:            body.Stream,
		HTML:              body.HTML,
		ConversationToken: body.ConversationToken,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	r = r.WithContext(auth.WithGrant(r.Context(), grant))
	ctx := r.Context()

	if req.Stream {
		g.askStreaming(w, r, req, plan)
		return
	}

	envelope, err := g.orchestrator.Ask(ctx, req, plan, nil)
	if err != nil {
		g.logger.Error("ask failed", "error", err, "request_id", auth.RequestIDFromContext(ctx))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	status := http.StatusOK
	if envelope.Failed() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, g.envelopeResponse(envelope, req.HTML, ""))
}

// askStreaming runs the same orchestration but reports progress over SSE.
// Once the stream is open every outcome, errors included, arrives as the
// terminal result frame.
func (g *Gateway) askStreaming(w http.ResponseWriter, r *http.Request, req *query.Request, plan *query.Plan) {
	emitter, err := stream.NewEmitter(w, g.logger)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	envelope, err := g.orchestrator.Ask(r.Context(), req, plan, emitter.Progress)
	if err != nil {
		g.logger.Error("streaming ask failed", "error", err, "request_id", auth.RequestIDFromContext(r.Context()))
		emitter.Result(askResponse{Type: "result", Citations: []backend.Citation{}, Error: "internal error"})
		return
	}

	emitter.Result(g.envelopeResponse(envelope, req.HTML, "result"))
}

// envelopeResponse converts the aggregate envelope to its wire shape,
// rendering the markdown answer to HTML when asked.
func (g *Gateway) envelopeResponse(envelope *aggregate.Envelope, html bool, frameType string) askResponse {
	resp := askResponse{
		Type:              frameType,
		Answer:            envelope.Answer,
		Citations:         envelope.Citations,
		ResponseTimeMs:    envelope.ResponseTime.Milliseconds(),
		ConversationToken: envelope.ConversationToken,
		Error:             envelope.Error,
	}
	if resp.Citations == nil {
		resp.Citations = []backend.Citation{}
	}
	if html && envelope.Answer != "" {
		if rendered, err := renderMarkdown(envelope.Answer); err == nil {
			resp.AnswerHTML = rendered
		} else {
			g.logger.Warn("markdown rendering failed", "error", err)
		}
	}
	return resp
}

// renderMarkdown converts the synthesized answer to HTML.
func renderMarkdown(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (g *Gateway) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrEntitlementRequired):
		writeError(w, http.StatusPaymentRequired, "chatbot entitlement required")
	case errors.Is(err, auth.ErrAuthenticationRequired):
		writeError(w, http.StatusUnauthorized, "authentication required")
	default:
		g.logger.Error("authorization failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
