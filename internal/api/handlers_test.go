package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cinescope/internal/api"
	"cinescope/internal/config"
	"cinescope/internal/database"
	"cinescope/internal/llm"
	"cinescope/internal/models"
	"cinescope/internal/services"
	"cinescope/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Import: config.ImportConfig{MaxDirectors: 3},
		Poster: config.PosterConfig{
			DownloadTimeout: 5 * time.Second,
			SampleSize:      32,
			DominantColors:  5,
		},
		LLM: config.LLMConfig{
			Model:     "test-model",
			MaxTokens: 100,
			Timeout:   5 * time.Second,
		},
		TMDb: config.TMDbConfig{Timeout: 5 * time.Second},
		RateLimit: config.RateLimitConfig{
			RequestsPerMinute: 6000,
			BurstSize:         100,
		},
	}
}

func newTestRouter(t *testing.T) (http.Handler, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	cfg := testConfig()
	log := zap.NewNop()
	llmClient := llm.NewClient(cfg, log)
	jobs := services.NewJobManager(db, log)
	registry := tools.NewRegistry(db, log)
	importer := services.NewImportService(db, cfg, log, jobs)
	posters := services.NewPosterService(db, cfg, log)
	enrichment := services.NewEnrichmentService(db, cfg, log, jobs, posters)
	preferences := services.NewPreferenceService(db, cfg, log)
	insights := services.NewInsightService(db, cfg, log, preferences, llmClient)
	chat := services.NewChatService(db, cfg, log, llmClient, registry)

	handlers := api.NewHandlers(db, log, importer, enrichment, preferences, posters, insights, chat, jobs)
	return api.SetupRouter(cfg, log, handlers), db
}

func seedMovie(t *testing.T, db *gorm.DB, imdbID, title string, year, rating int, genres []string) models.Movie {
	t.Helper()
	movie := models.Movie{IMDbID: imdbID, Title: title, Year: &year, Genres: genres}
	require.NoError(t, db.Create(&movie).Error)
	require.NoError(t, db.Create(&models.UserRating{MovieID: movie.ID, Rating: rating}).Error)
	return movie
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var payload map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func TestHealthAndReady(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, payload := doRequest(t, router, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", payload["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec, payload = doRequest(t, router, http.MethodGet, "/api/v1/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", payload["status"])
}

func TestListRatings(t *testing.T) {
	router, db := newTestRouter(t)
	seedMovie(t, db, "tt0000001", "Alpha", 1994, 9, []string{"Drama"})
	seedMovie(t, db, "tt0000002", "Beta", 2008, 7, []string{"Action"})

	rec, payload := doRequest(t, router, http.MethodGet, "/api/v1/ratings?sort_by=rating&order=desc", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), payload["total"])

	items := payload["items"].([]interface{})
	require.Len(t, items, 2)
	first := items[0].(map[string]interface{})
	assert.Equal(t, float64(9), first["rating"])

	// skip past the top-rated movie
	rec, payload = doRequest(t, router, http.MethodGet, "/api/v1/ratings?sort_by=rating&order=desc&skip=1&limit=1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), payload["total"])
	items = payload["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, float64(7), items[0].(map[string]interface{})["rating"])
}

func TestListRatingsGenreFilter(t *testing.T) {
	router, db := newTestRouter(t)
	seedMovie(t, db, "tt0000001", "Alpha", 1994, 9, []string{"Drama"})
	seedMovie(t, db, "tt0000002", "Beta", 2008, 7, []string{"Action"})

	rec, payload := doRequest(t, router, http.MethodGet, "/api/v1/ratings?genres=Action", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), payload["total"])
}

func TestGetMovieNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, payload := doRequest(t, router, http.MethodGet, "/api/v1/ratings/tt9999999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	errObj := payload["error"].(map[string]interface{})
	assert.Equal(t, "not_found", errObj["code"])
	assert.NotEmpty(t, payload["request_id"])
}

func TestGenreAnalysisEndpoint(t *testing.T) {
	router, db := newTestRouter(t)
	seedMovie(t, db, "tt0000001", "Alpha", 1994, 9, []string{"Drama"})

	rec, payload := doRequest(t, router, http.MethodGet, "/api/v1/analysis/genres", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, payload["favorite_genres"])
	assert.NotNil(t, payload["genre_distribution"])
}

func TestGenreAnalysisNoData(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, payload := doRequest(t, router, http.MethodGet, "/api/v1/analysis/genres", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, payload["favorite_genres"])
	assert.Contains(t, payload["insights"], "No data available")
}

func TestRegenerateAnalyses(t *testing.T) {
	router, db := newTestRouter(t)
	seedMovie(t, db, "tt0000001", "Alpha", 1994, 9, []string{"Drama"})

	rec, payload := doRequest(t, router, http.MethodPost, "/api/v1/analysis/regenerate/genres", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	regenerated := payload["regenerated"].([]interface{})
	assert.Equal(t, []interface{}{"genres"}, regenerated)
}

func TestRegenerateUnknownKind(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, payload := doRequest(t, router, http.MethodPost, "/api/v1/analysis/regenerate/bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errObj := payload["error"].(map[string]interface{})
	assert.Equal(t, "invalid_request", errObj["code"])
}

func TestImportCSVBadPath(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, payload := doRequest(t, router, http.MethodPost, "/api/v1/scraping/import-csv", `{"csv_path": "/nonexistent.csv"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errObj := payload["error"].(map[string]interface{})
	assert.Equal(t, "invalid_request", errObj["code"])
}

func TestJobStatusBeforeAnyJob(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, payload := doRequest(t, router, http.MethodGet, "/api/v1/scraping/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "not_started", payload["status"])
}

func TestStopWithoutActiveJob(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, payload := doRequest(t, router, http.MethodPost, "/api/v1/scraping/stop", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	errObj := payload["error"].(map[string]interface{})
	assert.Equal(t, "no_active_job", errObj["code"])
}

func TestResetEndpoint(t *testing.T) {
	router, db := newTestRouter(t)
	seedMovie(t, db, "tt0000001", "Alpha", 1994, 9, []string{"Drama"})

	rec, payload := doRequest(t, router, http.MethodDelete, "/api/v1/scraping/reset", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reset", payload["status"])

	var count int64
	require.NoError(t, db.Model(&models.Movie{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestChatDisabledWithoutKey(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, payload := doRequest(t, router, http.MethodPost, "/api/v1/chat/message", `{"message": "hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	errObj := payload["error"].(map[string]interface{})
	assert.Equal(t, "llm_disabled", errObj["code"])
}

func TestChatMessageValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, payload := doRequest(t, router, http.MethodPost, "/api/v1/chat/message", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errObj := payload["error"].(map[string]interface{})
	assert.Equal(t, "invalid_request", errObj["code"])
}

func TestClearChatHistory(t *testing.T) {
	router, db := newTestRouter(t)
	require.NoError(t, db.Create(&models.ChatConversation{ConversationID: "c1"}).Error)
	require.NoError(t, db.Create(&models.ChatMessage{ConversationID: "c1", Role: "user", Content: "hi"}).Error)

	rec, payload := doRequest(t, router, http.MethodDelete, "/api/v1/chat/history", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cleared", payload["status"])

	var count int64
	require.NoError(t, db.Model(&models.ChatMessage{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestListGenresEndpoint(t *testing.T) {
	router, db := newTestRouter(t)
	seedMovie(t, db, "tt0000001", "Alpha", 1994, 9, []string{"Drama", "Crime"})

	rec, payload := doRequest(t, router, http.MethodGet, "/api/v1/ratings/genres", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	genres := payload["genres"].([]interface{})
	assert.Equal(t, []interface{}{"Crime", "Drama"}, genres)
}
