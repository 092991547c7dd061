package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	service "github.com/okian/rally/internal/app"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/internal/domain/types"
	"github.com/okian/rally/pkg/logger"
)

// MatchesHandler handles match submission and the last result panel.
type MatchesHandler struct {
	deps Dependencies
	hub  *Hub
}

// NewMatchesHandler creates a new matches handler.
func NewMatchesHandler(deps Dependencies, hub *Hub) *MatchesHandler {
	return &MatchesHandler{deps: deps, hub: hub}
}

// HandlePostMatch handles POST /matches requests. The response is written as
// soon as the event is queued; delivery is reported on the live feed.
func (h *MatchesHandler) HandlePostMatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.matches.post"
	ctx := r.Context()

	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req types.MatchRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	in, err := toInput(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	ev, _, err := h.deps.SubmitMatch(ctx, in)
	if err != nil {
		if errors.Is(err, service.ErrNotStarted) {
			writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
			return
		}
		h.hub.logger.Error(ctx, "match submission failed", logger.Error(Wrap(op, err)))
		writeError(w, http.StatusInternalServerError, "internal_error", NewKind(op, ErrInternal))
		return
	}

	h.hub.PublishResult(ctx, ev)
	writeJSON(w, http.StatusAccepted, types.NewMatchResult(ev))
}

// HandleGetLast handles GET /matches/last requests.
func (h *MatchesHandler) HandleGetLast(w http.ResponseWriter, r *http.Request) {
	const op = "api.matches.last"

	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	ev, ok := h.deps.LastResult(r.Context())
	if !ok {
		writeError(w, http.StatusNotFound, "no_result", NewKind(op, ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, types.NewMatchResult(ev))
}

// toInput validates req the way the form does before anything is built:
// a supported sport and two distinct bare email addresses.
func toInput(req types.MatchRequest) (model.MatchInput, error) {
	sport, err := model.ParseSport(req.SportType)
	if err != nil {
		return model.MatchInput{}, err
	}
	winner, err := parseEmail("winner", req.Winner)
	if err != nil {
		return model.MatchInput{}, err
	}
	loser, err := parseEmail("loser", req.Loser)
	if err != nil {
		return model.MatchInput{}, err
	}
	if strings.EqualFold(winner, loser) {
		return model.MatchInput{}, errors.New("winner and loser must differ")
	}
	return model.MatchInput{SportType: sport, WinnerContact: winner, LoserContact: loser}, nil
}

func parseEmail(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("missing %s", field)
	}
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v || addr.Name != "" {
		return "", fmt.Errorf("invalid %s; must be an email address", field)
	}
	return v, nil
}
