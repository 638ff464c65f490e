package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/MJE43/stargift-miniapp/internal/catalog"
	"github.com/MJE43/stargift-miniapp/internal/drawlog"
	"github.com/MJE43/stargift-miniapp/internal/lib/logger/sl"
	"github.com/MJE43/stargift-miniapp/internal/lottie"
	"github.com/MJE43/stargift-miniapp/internal/miniapp"
	"github.com/MJE43/stargift-miniapp/internal/spin"
	"github.com/MJE43/stargift-miniapp/internal/telegram"
)

// ========== Requests & responses ==========

type tierRequest struct {
	Tier int `json:"tier" validate:"required,gt=0"`
}

type viewportRequest struct {
	Width float64 `json:"width" validate:"gte=0"`
}

type spinRequest struct {
	// Demo switches demo mode before spinning when set.
	Demo *bool `json:"demo"`
}

type invoiceStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type swapRequest struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

type recolorRequest struct {
	Animation json.RawMessage `json:"animation" validate:"required"`
	Tint      string          `json:"tint" validate:"required_without=Swaps"`
	Swaps     []swapRequest   `json:"swaps" validate:"dive"`
	Tolerance float64         `json:"tolerance" validate:"gte=0,lte=2"`
}

type recolorResponse struct {
	Changed   int             `json:"changed"`
	Animation json.RawMessage `json:"animation"`
}

type tierView struct {
	Tier     catalog.Tier   `json:"tier"`
	Selected bool           `json:"selected"`
	Odds     []catalog.Odds `json:"odds"`
}

type distributionRow struct {
	drawlog.GiftCount
	Expected string `json:"expected,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type errorBody struct {
	Error apiError `json:"error"`
}

// ========== Spin ==========

// GET /api/v1/state
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.ctrl.Snapshot())
}

// GET /api/v1/tiers
func (s *Server) handleTiers(w http.ResponseWriter, r *http.Request) {
	current := s.ctrl.Snapshot().Tier
	tiers := s.chances.Tiers()
	out := make([]tierView, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, tierView{Tier: t, Selected: t == current, Odds: s.chances.Odds(t, s.cat)})
	}
	render.JSON(w, r, map[string]any{"tiers": out})
}

// PUT /api/v1/tier
func (s *Server) handleSetTier(w http.ResponseWriter, r *http.Request) {
	var req tierRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.ctrl.SetTier(catalog.Tier(req.Tier)); err != nil {
		s.writeSpinError(w, r, err)
		return
	}
	render.JSON(w, r, s.ctrl.Snapshot())
}

// PUT /api/v1/viewport
func (s *Server) handleViewport(w http.ResponseWriter, r *http.Request) {
	var req viewportRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.ctrl.SetViewport(req.Width); err != nil {
		s.writeSpinError(w, r, err)
		return
	}
	s.renderer.SetContainerWidth(req.Width)
	render.NoContent(w, r)
}

// POST /api/v1/spin
func (s *Server) handleSpin(w http.ResponseWriter, r *http.Request) {
	var req spinRequest
	if !s.decodeOptional(w, r, &req) {
		return
	}
	if req.Demo != nil {
		if err := s.ctrl.SetDemo(*req.Demo); err != nil {
			s.writeSpinError(w, r, err)
			return
		}
	}
	if err := s.ctrl.Spin(r.Context()); err != nil {
		s.writeSpinError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, s.ctrl.Snapshot())
}

// POST /api/v1/result/dismiss
func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]bool{"dismissed": s.ctrl.Dismiss()})
}

// POST /api/v1/demo/disable
func (s *Server) handleDisableDemo(w http.ResponseWriter, r *http.Request) {
	s.ctrl.DisableDemo()
	render.JSON(w, r, s.ctrl.Snapshot())
}

// POST /api/v1/invoices/{id}/status
func (s *Server) handleInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid invoice id", "id")
		return
	}
	var req invoiceStatusRequest
	if !s.decode(w, r, &req) {
		return
	}
	status, err := spin.ParseInvoiceStatus(strings.ToLower(req.Status))
	if err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), "status")
		return
	}
	if err := s.invoices.Resolve(id, status); err != nil {
		s.writeError(w, r, http.StatusNotFound, "NOT_FOUND", "invoice not found or already resolved", "id")
		return
	}
	render.JSON(w, r, map[string]string{"status": string(status)})
}

func (s *Server) writeSpinError(w http.ResponseWriter, r *http.Request, err error) {
	var notice *spin.NoticeError
	switch {
	case errors.Is(err, spin.ErrBusy):
		s.writeError(w, r, http.StatusConflict, "BUSY", "a spin or payment is in progress", "")
	case errors.Is(err, spin.ErrClosed):
		s.writeError(w, r, http.StatusServiceUnavailable, "CLOSED", "roulette is shut down", "")
	case errors.Is(err, spin.ErrUnknownTier):
		s.writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), "tier")
	case errors.Is(err, spin.ErrInvoiceUnsupported):
		s.writeError(w, r, http.StatusNotImplemented, "PAYMENT_UNAVAILABLE", spin.UserMessage(err), "")
	case errors.As(err, &notice):
		s.writeError(w, r, http.StatusBadGateway, "PAYMENT_ERROR", notice.Message, "")
	default:
		s.log.Error("spin request failed", slog.String("request_id", middleware.GetReqID(r.Context())), sl.Err(err))
		s.writeError(w, r, http.StatusInternalServerError, "SERVER_ERROR", spin.UserMessage(err), "")
	}
}

// ========== Leaderboard & profile ==========

// GET /api/v1/leaderboard?q=&refresh=1
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.board == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "UNAVAILABLE", "leaderboard is not configured", "")
		return
	}
	if r.URL.Query().Get("refresh") == "1" {
		s.board.Invalidate()
	}
	render.JSON(w, r, s.board.Page(r.Context(), s.initDataFor(r), strings.TrimSpace(r.URL.Query().Get("q"))))
}

// GET /api/v1/profile
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	u, err := telegram.CurrentUser(s.initDataFor(r))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, miniapp.CodeInvalidInitData, "init data is not readable", miniapp.HeaderInitData)
		return
	}
	render.JSON(w, r, telegram.ProfileFor(u))
}

func (s *Server) initDataFor(r *http.Request) string {
	if v := r.Header.Get(miniapp.HeaderInitData); v != "" {
		return v
	}
	if s.auth != nil {
		return s.auth.InitData()
	}
	return ""
}

// ========== Draw journal ==========

// GET /api/v1/draws?tier=&mode=&session=&limit=
func (s *Server) handleDraws(w http.ResponseWriter, r *http.Request) {
	f, ok := s.drawFilter(w, r)
	if !ok {
		return
	}
	rows, err := s.draws.Recent(r.Context(), f, qInt(r, "limit", 50))
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to list draws", "")
		return
	}
	render.JSON(w, r, map[string]any{"rows": rows, "count": len(rows)})
}

// GET /api/v1/draws/distribution?tier=&mode=&session=
func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request) {
	f, ok := s.drawFilter(w, r)
	if !ok {
		return
	}
	counts, total, err := s.draws.Distribution(r.Context(), f)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to count draws", "")
		return
	}
	rows := make([]distributionRow, len(counts))
	for i, gc := range counts {
		rows[i] = distributionRow{GiftCount: gc}
		if tier := catalog.Tier(f.Tier); f.Tier > 0 && s.chances.Has(tier) {
			rows[i].Expected = catalog.FormatShare(s.chances.Weight(tier, catalog.GiftID(gc.GiftID)), s.chances.Total(tier))
		}
	}
	render.JSON(w, r, map[string]any{"rows": rows, "total": total})
}

// GET /api/v1/draws/export.csv?session=
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	f, ok := s.drawFilter(w, r)
	if !ok {
		return
	}
	if f.SessionID == uuid.Nil {
		s.writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "session is required", "session")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="draws_%s.csv"`, f.SessionID))
	if err := s.draws.ExportCSV(r.Context(), w, f.SessionID); err != nil {
		// Headers are gone; the truncated file is all we can give.
		s.log.Error("draw export failed", sl.Err(err))
	}
}

// drawFilter reads the journal filter. session defaults to the running
// journal; "all" widens to every session.
func (s *Server) drawFilter(w http.ResponseWriter, r *http.Request) (drawlog.Filter, bool) {
	if s.draws == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "UNAVAILABLE", "draw journal is disabled", "")
		return drawlog.Filter{}, false
	}
	q := r.URL.Query()
	f := drawlog.Filter{SessionID: s.session, Tier: qInt(r, "tier", 0), Mode: q.Get("mode")}
	switch v := q.Get("session"); v {
	case "":
	case "all":
		f.SessionID = uuid.Nil
	default:
		id, err := uuid.Parse(v)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid session id", "session")
			return drawlog.Filter{}, false
		}
		f.SessionID = id
	}
	return f, true
}

// ========== Animations ==========

// POST /api/v1/animations/recolor
func (s *Server) handleRecolor(w http.ResponseWriter, r *http.Request) {
	var req recolorRequest
	if !s.decode(w, r, &req) {
		return
	}

	p := lottie.Palette{Tolerance: req.Tolerance}
	if req.Tint != "" {
		c, err := lottie.ParseHex(req.Tint)
		if err != nil {
			s.writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), "tint")
			return
		}
		p.Fallback = &c
	}
	for i, sw := range req.Swaps {
		from, errFrom := lottie.ParseHex(sw.From)
		to, errTo := lottie.ParseHex(sw.To)
		if err := errors.Join(errFrom, errTo); err != nil {
			s.writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), fmt.Sprintf("swaps[%d]", i))
			return
		}
		p.Swaps = append(p.Swaps, lottie.Swap{From: from, To: to})
	}

	doc, err := lottie.Parse(req.Animation)
	if err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "animation is not a valid document", "animation")
		return
	}
	n, err := lottie.Recolor(doc, p)
	if err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), "animation")
		return
	}
	out, err := lottie.Encode(doc)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "SERVER_ERROR", "failed to encode animation", "")
		return
	}
	render.JSON(w, r, recolorResponse{Changed: n, Animation: out})
}

// ========== Health ==========

// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.ctrl.Snapshot()
	render.JSON(w, r, map[string]any{
		"status":           "healthy",
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
		"uptime":           time.Since(s.startTime).String(),
		"phase":            snap.Phase,
		"renderers":        s.hub.Clients(),
		"pending_invoices": s.invoices.Pending(),
		"drawlog":          s.draws != nil,
		"leaderboard":      s.board != nil,
		"request_id":       middleware.GetReqID(r.Context()),
	})
}

// ========== Helpers ==========

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, msg, field string) {
	render.Status(r, status)
	render.JSON(w, r, errorBody{Error: apiError{Code: code, Message: msg, Field: field}})
}

// decode reads a JSON body into v and validates it, answering the request
// itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid JSON", "")
		return false
	}
	return s.check(w, r, v)
}

// decodeOptional is decode for routes whose body may be empty.
func (s *Server) decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid JSON", "")
		return false
	}
	return s.check(w, r, v)
}

func (s *Server) check(w http.ResponseWriter, r *http.Request, v any) bool {
	err := s.validate.Struct(v)
	if err == nil {
		return true
	}
	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		s.writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", validationMessage(errs), errs[0].Field())
		return false
	}
	s.writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), "")
	return false
}

func validationMessage(errs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		switch err.ActualTag() {
		case "required", "required_without":
			msgs = append(msgs, fmt.Sprintf("field %s is required", err.Field()))
		case "gt", "gte", "lte":
			msgs = append(msgs, fmt.Sprintf("field %s is out of range", err.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s is invalid", err.Field()))
		}
	}
	return strings.Join(msgs, ", ")
}

func qInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
