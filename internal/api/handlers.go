package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"cinescope/internal/database"
	"cinescope/internal/llm"
	"cinescope/internal/models"
	"cinescope/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handlers bundles the HTTP handlers with their service dependencies.
type Handlers struct {
	db          *gorm.DB
	logger      *zap.Logger
	importer    *services.ImportService
	enrichment  *services.EnrichmentService
	preferences *services.PreferenceService
	posters     *services.PosterService
	insights    *services.InsightService
	chat        *services.ChatService
	jobs        *services.JobManager
}

// NewHandlers creates the handler set.
func NewHandlers(
	db *gorm.DB,
	logger *zap.Logger,
	importer *services.ImportService,
	enrichment *services.EnrichmentService,
	preferences *services.PreferenceService,
	posters *services.PosterService,
	insights *services.InsightService,
	chat *services.ChatService,
	jobs *services.JobManager,
) *Handlers {
	return &Handlers{
		db:          db,
		logger:      logger,
		importer:    importer,
		enrichment:  enrichment,
		preferences: preferences,
		posters:     posters,
		insights:    insights,
		chat:        chat,
		jobs:        jobs,
	}
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
		"request_id": c.GetString("request_id"),
	})
}

// serviceError maps well-known service failures onto HTTP statuses.
func (h *Handlers) serviceError(c *gin.Context, err error) {
	switch {
	case err == services.ErrJobActive:
		respondError(c, http.StatusBadRequest, "job_active", err.Error())
	case err == services.ErrNoActiveJob:
		respondError(c, http.StatusNotFound, "no_active_job", err.Error())
	case err == llm.ErrDisabled:
		respondError(c, http.StatusServiceUnavailable, "llm_disabled", "Chat requires an LLM API key")
	case strings.Contains(err.Error(), "not found"):
		respondError(c, http.StatusNotFound, "not_found", err.Error())
	default:
		h.logger.Error("Request failed",
			zap.String("request_id", c.GetString("request_id")), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "cinescope"})
}

// ReadyCheck reports readiness, including database connectivity.
func (h *Handlers) ReadyCheck(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.Ping()
	}
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, "not_ready", "Database unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// --- Analysis ---

// GetGenreAnalysis returns the genre preference analysis.
func (h *Handlers) GetGenreAnalysis(c *gin.Context) {
	analysis, err := h.preferences.Genres(false)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

// GetYearAnalysis returns the release-year preference analysis.
func (h *Handlers) GetYearAnalysis(c *gin.Context) {
	analysis, err := h.preferences.Years(false)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

// GetRuntimeAnalysis returns the runtime preference analysis.
func (h *Handlers) GetRuntimeAnalysis(c *gin.Context) {
	analysis, err := h.preferences.Runtime(false)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

// GetCastAnalysis returns the actor and director preference analysis.
func (h *Handlers) GetCastAnalysis(c *gin.Context) {
	analysis, err := h.preferences.Cast(false)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

// GetPosterStyleAnalysis returns the poster style preference analysis.
func (h *Handlers) GetPosterStyleAnalysis(c *gin.Context) {
	analysis, err := h.posters.Styles(false)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

// GetOverallInsights returns the cross-analysis synthesis.
func (h *Handlers) GetOverallInsights(c *gin.Context) {
	insights, err := h.insights.Overall(c.Request.Context(), false)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, insights)
}

// GetRecommendations returns recommendation lines derived from insights.
func (h *Handlers) GetRecommendations(c *gin.Context) {
	limit := queryInt(c, "limit", 10)
	recs, err := h.insights.Recommendations(c.Request.Context(), limit)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": recs})
}

// RegenerateAnalyses recomputes one analysis kind, or all of them when the
// path kind is "all".
func (h *Handlers) RegenerateAnalyses(c *gin.Context) {
	all := []string{
		models.AnalysisGenres, models.AnalysisYears, models.AnalysisRuntime,
		models.AnalysisCast, models.AnalysisPosterStyles, models.AnalysisInsights,
	}

	requested := c.Param("kind")
	var kinds []string
	if requested == "all" {
		kinds = all
	} else {
		for _, kind := range all {
			if kind == requested {
				kinds = []string{requested}
				break
			}
		}
		if kinds == nil {
			respondError(c, http.StatusBadRequest, "invalid_request",
				fmt.Sprintf("Unknown analysis type: %s", requested))
			return
		}
	}

	regenerated := make([]string, 0, len(kinds))
	failed := make(map[string]string)
	for _, kind := range kinds {
		var err error
		switch kind {
		case models.AnalysisGenres:
			_, err = h.preferences.Genres(true)
		case models.AnalysisYears:
			_, err = h.preferences.Years(true)
		case models.AnalysisRuntime:
			_, err = h.preferences.Runtime(true)
		case models.AnalysisCast:
			_, err = h.preferences.Cast(true)
		case models.AnalysisPosterStyles:
			_, err = h.posters.Styles(true)
		case models.AnalysisInsights:
			_, err = h.insights.Overall(c.Request.Context(), true)
		default:
			failed[kind] = "unknown analysis type"
			continue
		}
		if err != nil {
			failed[kind] = err.Error()
			continue
		}
		regenerated = append(regenerated, kind)
	}

	c.JSON(http.StatusOK, gin.H{"regenerated": regenerated, "failed": failed})
}

// --- Ratings ---

type ratedMovieResponse struct {
	Movie   models.Movie `json:"movie"`
	Rating  int          `json:"rating"`
	Review  *string      `json:"review,omitempty"`
	RatedAt *string      `json:"rated_at,omitempty"`
}

func toRatedMovieResponse(row database.RatedMovie) ratedMovieResponse {
	resp := ratedMovieResponse{
		Movie:  row.Movie,
		Rating: row.Rating,
		Review: row.Review,
	}
	if row.RatedAt != nil {
		formatted := row.RatedAt.Format("2006-01-02")
		resp.RatedAt = &formatted
	}
	return resp
}

// ListRatings returns the rated collection with filtering, sorting, and
// pagination.
func (h *Handlers) ListRatings(c *gin.Context) {
	skip := queryInt(c, "skip", 0)
	if skip < 0 {
		skip = 0
	}
	limit := queryInt(c, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	filter := database.RatedMovieFilter{
		Search:  c.Query("search"),
		SortBy:  c.DefaultQuery("sort_by", "rated_at"),
		Order:   c.DefaultQuery("order", "desc"),
		Offset:  skip,
		Limit:   limit,
		Genres:  splitQuery(c.Query("genres")),
		YearMin: queryIntPtr(c, "year_min"),
		YearMax: queryIntPtr(c, "year_max"),
	}
	filter.RatingMin = queryIntPtr(c, "rating_min")
	filter.RatingMax = queryIntPtr(c, "rating_max")
	filter.RuntimeMin = queryIntPtr(c, "runtime_min")
	filter.RuntimeMax = queryIntPtr(c, "runtime_max")
	filter.IMDbRatingMin = queryFloatPtr(c, "imdb_rating_min")
	filter.IMDbRatingMax = queryFloatPtr(c, "imdb_rating_max")

	rows, total, err := database.QueryRatedMovies(h.db, filter)
	if err != nil {
		h.serviceError(c, err)
		return
	}

	items := make([]ratedMovieResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, toRatedMovieResponse(row))
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"total": total,
		"skip":  skip,
		"limit": limit,
	})
}

// GetRatingStats returns aggregate statistics over the collection.
func (h *Handlers) GetRatingStats(c *gin.Context) {
	rows, err := database.AllRatedMovies(h.db)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	if len(rows) == 0 {
		c.JSON(http.StatusOK, gin.H{"total_movies": 0})
		return
	}

	distribution := make(map[string]int)
	var sum int
	for _, row := range rows {
		sum += row.Rating
		distribution[strconv.Itoa(row.Rating)]++
	}

	c.JSON(http.StatusOK, gin.H{
		"total_movies":        len(rows),
		"average_rating":      float64(sum) / float64(len(rows)),
		"rating_distribution": distribution,
	})
}

// ListGenres returns all genres present in the rated collection.
func (h *Handlers) ListGenres(c *gin.Context) {
	genres, err := database.DistinctGenres(h.db)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"genres": genres})
}

// GetMovie returns one rated movie by IMDb id with full relations.
func (h *Handlers) GetMovie(c *gin.Context) {
	imdbID := c.Param("imdb_id")

	var movie models.Movie
	err := h.db.Preload("UserRating").Preload("CastMembers").Preload("PosterAnalysis").
		Where("imdb_id = ?", imdbID).First(&movie).Error
	if err == gorm.ErrRecordNotFound {
		respondError(c, http.StatusNotFound, "not_found", "Movie not found: "+imdbID)
		return
	}
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, movie)
}

// --- Scraping / import ---

type importCSVRequest struct {
	CSVPath string `json:"csv_path"`
}

// ImportCSV starts a background CSV import job.
func (h *Handlers) ImportCSV(c *gin.Context) {
	var req importCSVRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
			return
		}
	}

	job, err := h.importer.StartCSVImport(req.CSVPath)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// ScrapePosters starts a background metadata and poster scrape job.
func (h *Handlers) ScrapePosters(c *gin.Context) {
	job, err := h.enrichment.StartPosterScrape()
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// StopJob requests cancellation of the active background job.
func (h *Handlers) StopJob(c *gin.Context) {
	if err := h.jobs.Stop(); err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopping"})
}

// JobStatus returns the most recent background job.
func (h *Handlers) JobStatus(c *gin.Context) {
	job, err := h.jobs.Latest()
	if err != nil {
		h.serviceError(c, err)
		return
	}
	if job == nil {
		c.JSON(http.StatusOK, gin.H{"status": "not_started"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// ResetData wipes the imported catalogue and derived analyses.
func (h *Handlers) ResetData(c *gin.Context) {
	if err := h.importer.Reset(); err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// --- Chat ---

type chatMessageRequest struct {
	Message        string `json:"message" binding:"required"`
	ConversationID string `json:"conversation_id"`
}

// SendChatMessage runs one chat turn.
func (h *Handlers) SendChatMessage(c *gin.Context) {
	var req chatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}

	reply, err := h.chat.SendMessage(c.Request.Context(), req.ConversationID, req.Message)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

// ListConversations returns all chat conversations.
func (h *Handlers) ListConversations(c *gin.Context) {
	conversations, err := h.chat.ListConversations()
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// GetChatHistory returns one conversation's transcript.
func (h *Handlers) GetChatHistory(c *gin.Context) {
	conversation, err := h.chat.History(c.Param("conversation_id"))
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversation)
}

// ClearChatHistory deletes every conversation and message.
func (h *Handlers) ClearChatHistory(c *gin.Context) {
	if err := h.chat.ClearHistory(); err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

// --- query helpers ---

func queryInt(c *gin.Context, name string, fallback int) int {
	if v := c.Query(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func queryIntPtr(c *gin.Context, name string) *int {
	if v := c.Query(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return &n
		}
	}
	return nil
}

func queryFloatPtr(c *gin.Context, name string) *float64 {
	if v := c.Query(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return &f
		}
	}
	return nil
}

func splitQuery(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
