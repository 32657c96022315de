package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"battlelog-tracker/internal/api"
	"battlelog-tracker/internal/constants"
	"battlelog-tracker/internal/domain"
	"battlelog-tracker/internal/metrics"
	"battlelog-tracker/internal/service"

	"github.com/rs/zerolog"
)

// BattleLogServer exposes the services as a JSON API.
type BattleLogServer struct {
	seasons *service.SeasonLogCache
	search  *service.SearchService
	digest  *service.DigestService
	catalog *service.CharacterCatalog
	ingest  *service.IngestService
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewBattleLogServer(
	seasons *service.SeasonLogCache,
	search *service.SearchService,
	digest *service.DigestService,
	catalog *service.CharacterCatalog,
	ingest *service.IngestService,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *BattleLogServer {
	return &BattleLogServer{
		seasons: seasons,
		search:  search,
		digest:  digest,
		catalog: catalog,
		ingest:  ingest,
		metrics: m,
		logger:  logger,
	}
}

func (s *BattleLogServer) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/latest-losses", s.handleLatestLosses)
	mux.HandleFunc("GET /api/characters", s.handleCharacters)
	mux.HandleFunc("POST /api/icons/reload", s.handleReloadIcons)
	mux.HandleFunc("POST /api/seasons/{season}/rebuild", s.handleRebuild)
	mux.HandleFunc("POST /api/battlelogs", s.handleSubmit)
	mux.HandleFunc("POST /api/add_battlelog", s.handleReceive)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return mux
}

// Handler bounds every route by requestTimeout except submission, whose
// conversion stage runs on CONVERT_TIMEOUT.
func (s *BattleLogServer) Handler(requestTimeout time.Duration) http.Handler {
	routes := s.Routes()
	bounded := http.TimeoutHandler(routes, requestTimeout, `{"error":"request timed out"}`)

	mux := http.NewServeMux()
	mux.Handle("POST /api/battlelogs", routes)
	mux.Handle("/", bounded)
	return mux
}

type searchRequest struct {
	Side             domain.Side `json:"side"`
	Characters       []string    `json:"characters"`
	Season           string      `json:"season"`
	ExcludeFederated bool        `json:"exclude_federated"`
	OnlyLimited      bool        `json:"only_limited"`
}

type searchResponse struct {
	Results []domain.MatchResult `json:"results"`
}

func (s *BattleLogServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "No data received")
		return
	}

	results, err := s.search.Search(r.Context(), service.SearchQuery{
		Side:             req.Side,
		Characters:       req.Characters,
		Season:           req.Season,
		ExcludeFederated: req.ExcludeFederated || req.OnlyLimited,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if results == nil {
		results = []domain.MatchResult{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: results})
}

func (s *BattleLogServer) handleLatestLosses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	n := constants.DefaultDigestSize
	if v := q.Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "n must be an integer")
			return
		}
		n = min(parsed, constants.MaxDigestSize)
	}

	exclude := false
	if v := q.Get("exclude_federated"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "exclude_federated must be a boolean")
			return
		}
		exclude = parsed
	}

	season := q.Get("season")
	if season == "" {
		season = s.seasons.CurrentSeason()
	}

	digests, err := s.digest.LatestLosses(r.Context(), n, season, exclude)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.LatestLossesResponse{Season: season, Results: digests})
}

type charactersResponse struct {
	Strikers []domain.Character `json:"strikers"`
	Specials []domain.Character `json:"specials"`
}

func (s *BattleLogServer) handleCharacters(w http.ResponseWriter, r *http.Request) {
	resp := charactersResponse{
		Strikers: s.catalog.Strikers(r.Context()),
		Specials: s.catalog.Specials(r.Context()),
	}
	if resp.Strikers == nil {
		resp.Strikers = []domain.Character{}
	}
	if resp.Specials == nil {
		resp.Specials = []domain.Character{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *BattleLogServer) handleReloadIcons(w http.ResponseWriter, r *http.Request) {
	icons, err := s.catalog.ReloadIcons(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"icons": icons})
}

type rebuildResponse struct {
	Season  string `json:"season"`
	Version uint64 `json:"version"`
	Count   int    `json:"count"`
}

func (s *BattleLogServer) handleRebuild(w http.ResponseWriter, r *http.Request) {
	log, err := s.seasons.Rebuild(r.Context(), r.PathValue("season"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rebuildResponse{Season: log.Season, Version: log.Version, Count: len(log.Records)})
}

type submitRequest struct {
	Fields []string `json:"fields"`
}

func (s *BattleLogServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "No data received")
		return
	}

	res, err := s.ingest.Submit(r.Context(), req.Fields)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *BattleLogServer) handleReceive(w http.ResponseWriter, r *http.Request) {
	var row domain.Row
	if err := json.NewDecoder(r.Body).Decode(&row); err != nil || len(row) == 0 {
		writeJSON(w, http.StatusBadRequest, api.PushResponse{Result: "error", Detail: "No data received"})
		return
	}

	if _, err := s.ingest.Receive(r.Context(), row); err != nil {
		status := http.StatusInternalServerError
		if service.IsValidation(err) {
			status = http.StatusBadRequest
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to receive battle log")
		writeJSON(w, status, api.PushResponse{Result: "error", Detail: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, api.PushResponse{Result: "ok"})
}

type healthResponse struct {
	Status        string `json:"status"`
	CurrentSeason string `json:"current_season"`
	Loaded        bool   `json:"loaded"`
	Version       uint64 `json:"version,omitempty"`
}

func (s *BattleLogServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", CurrentSeason: s.seasons.CurrentSeason()}
	if log, ok := s.seasons.Peek(""); ok {
		resp.Loaded = true
		resp.Version = log.Version
	}
	writeJSON(w, http.StatusOK, resp)
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// fail maps service errors to status codes.
func (s *BattleLogServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case service.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, api.ErrUnknownSeason):
		status = http.StatusNotFound
	case service.FailureReason(err) != "":
		status = http.StatusBadGateway
	}

	logger := zerolog.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	} else {
		logger.Debug().Err(err).Str("path", r.URL.Path).Msg("request rejected")
	}

	writeJSON(w, status, errorResponse{Error: errorMessage(err), Reason: service.FailureReason(err)})
}

// errorMessage keeps validation messages as-is and hides wrapped details of
// the write path behind the stage that failed.
func errorMessage(err error) string {
	for _, sentinel := range []error{
		service.ErrEmptyQuery,
		service.ErrWriteFailed,
		service.ErrConversionFailed,
		service.ErrConvertedRowMissing,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
