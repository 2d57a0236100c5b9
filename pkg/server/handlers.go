package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/Geniuskaa/kids_competition/pkg/bracket"
	"github.com/Geniuskaa/kids_competition/pkg/parser"
	"github.com/Geniuskaa/kids_competition/pkg/sports/karate"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	MAX_ROSTER_SIZE = 10 << 20
	ROSTER_FIELD    = "roster"
	XLSX_MIME       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

//go:embed templates/*.html
var templatesFS embed.FS

var pages = template.Must(template.New("pages").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).ParseFS(templatesFS, "templates/*.html"))

type competitionService interface {
	Competitors(ctx context.Context) (karate.CompetitorList, error)
	CompetitorsByClub(ctx context.Context, clubID int) (karate.CompetitorList, error)
	CompetitorsByCoach(ctx context.Context, coachID int) (karate.CompetitorList, error)
	Coaches(ctx context.Context) ([]karate.CoachRow, error)
	Clubs(ctx context.Context) ([]karate.Club, error)
	Categories(ctx context.Context) ([]karate.Category, error)
	BattleNet(ctx context.Context, categoryID int) (karate.BattleNetView, error)
	PlayBattleNet(ctx context.Context, categoryID int) (karate.Category, *bracket.Net, error)
	ImportRoster(ctx context.Context, entries []karate.RosterEntry) (int, error)
}

type rosterParser interface {
	ParseXlsx(r io.Reader) (*parser.Response, error)
}

type Handler struct {
	logger     *zap.Logger
	serv       competitionService
	parser     rosterParser
	reportsDir string
}

func NewHandler(logger *zap.Logger, serv competitionService, reportsDir string) *Handler {
	return &Handler{logger: logger, serv: serv, parser: parser.Impl{}, reportsDir: reportsDir}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.index)
	r.Get("/childs", h.childs)
	r.Get("/trainers", h.trainers)
	r.Get("/teams", h.teams)
	r.Get("/categories", h.categories)
	r.Get("/team/{id}", h.team)
	r.Get("/trainer/{id}", h.trainer)
	r.Get("/battle-net/{id}", h.battleNet)
	r.Get("/battle-net/{id}/xlsx", h.battleNetXlsx)
	r.Get("/documents", h.documents)
	r.Handle("/document/*", http.StripPrefix("/document/", http.FileServer(http.Dir(h.reportsDir))))
	r.Post("/roster", h.uploadRoster)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.notFound(w, "Такой страницы нет")
	})

	return r
}

func (h *Handler) render(w http.ResponseWriter, name string, data interface{}) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		h.internalError(w, fmt.Errorf("ExecuteTemplate %s failed: %w", name, err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (h *Handler) notFound(w http.ResponseWriter, msg string) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, "not-found", msg); err != nil {
		http.Error(w, msg, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) internalError(w http.ResponseWriter, err error) {
	h.logger.Error("request failed", zap.Error(err))
	http.Error(w, "Something going wrong...", http.StatusInternalServerError)
}

// fail maps the service sentinels to 404 and everything else to 500.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, karate.ErrCategoryNotFound):
		h.notFound(w, "Категория не найдена")
	case errors.Is(err, karate.ErrClubNotFound):
		h.notFound(w, "Команда не найдена")
	case errors.Is(err, karate.ErrCoachNotFound):
		h.notFound(w, "Тренер не найден")
	default:
		h.internalError(w, err)
	}
}

func idParam(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	h.render(w, "index", nil)
}

func (h *Handler) childs(w http.ResponseWriter, r *http.Request) {
	list, err := h.serv.Competitors(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.render(w, "childs", list)
}

func (h *Handler) team(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.notFound(w, "Команда не найдена")
		return
	}

	list, err := h.serv.CompetitorsByClub(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.render(w, "childs", list)
}

func (h *Handler) trainer(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.notFound(w, "Тренер не найден")
		return
	}

	list, err := h.serv.CompetitorsByCoach(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.render(w, "childs", list)
}

func (h *Handler) trainers(w http.ResponseWriter, r *http.Request) {
	coaches, err := h.serv.Coaches(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.render(w, "trainers", coaches)
}

func (h *Handler) teams(w http.ResponseWriter, r *http.Request) {
	clubs, err := h.serv.Clubs(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.render(w, "teams", clubs)
}

func (h *Handler) categories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.serv.Categories(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.render(w, "categories", cats)
}

func (h *Handler) battleNet(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.notFound(w, "Категория не найдена")
		return
	}

	view, err := h.serv.BattleNet(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.render(w, "battle-net", view)
}

func (h *Handler) battleNetXlsx(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		h.notFound(w, "Категория не найдена")
		return
	}

	_, net, err := h.serv.PlayBattleNet(r.Context(), id)
	if errors.Is(err, bracket.ErrInsufficientEntrants) {
		http.Error(w, karate.TooFewMessage, http.StatusConflict)
		return
	}
	if err != nil {
		h.fail(w, err)
		return
	}

	var buf bytes.Buffer
	if err := parser.ExportBattleNet(&buf, net.Name, net.Grid); err != nil {
		h.internalError(w, err)
		return
	}

	w.Header().Set("Content-Type", XLSX_MIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"battle-net-%d.xlsx\"", id))
	_, _ = buf.WriteTo(w)
}

func (h *Handler) documents(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(h.reportsDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		h.internalError(w, fmt.Errorf("os.ReadDir failed: %w", err))
		return
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	h.render(w, "documents", names)
}

type rowErrorDTO struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type rosterResultDTO struct {
	Imported    int           `json:"imported"`
	Failed      []rowErrorDTO `json:"failed"`
	PercentErrs int           `json:"percent_errs"`
}

func (h *Handler) uploadRoster(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MAX_ROSTER_SIZE)

	file, _, err := r.FormFile(ROSTER_FIELD)
	if err != nil {
		http.Error(w, fmt.Sprintf("form file %q is required", ROSTER_FIELD), http.StatusBadRequest)
		return
	}
	defer file.Close()

	resp, err := h.parser.ParseXlsx(file)
	if err != nil {
		h.logger.Warn("roster rejected", zap.Error(err))
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	result := rosterResultDTO{Failed: make([]rowErrorDTO, 0, len(resp.Failed)), PercentErrs: resp.PercentErrs}
	for _, f := range resp.Failed {
		result.Failed = append(result.Failed, rowErrorDTO{Row: f.Row, Reason: f.Err.Error()})
	}

	if len(resp.Entries) > 0 {
		n, err := h.serv.ImportRoster(r.Context(), resp.Entries)
		if err != nil {
			h.internalError(w, err)
			return
		}
		result.Imported = n
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.logger.Error("json.Encode failed", zap.Error(err))
	}
}
