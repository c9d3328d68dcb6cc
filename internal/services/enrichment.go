package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"cinescope/internal/config"
	"cinescope/internal/database"
	"cinescope/internal/models"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const (
	tmdbFindURL       = "https://api.themoviedb.org/3/find/%s"
	tmdbPosterBaseURL = "https://image.tmdb.org/t/p/w342"
)

// EnrichmentService fills movie metadata and poster URLs from TMDb and
// drives the background poster-scrape job. Without a TMDb API key it
// degrades to analyzing posters whose URLs are already known.
type EnrichmentService struct {
	db         *gorm.DB
	config     *config.Config
	logger     *zap.Logger
	jobs       *JobManager
	posters    *PosterService
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewEnrichmentService creates an enrichment service.
func NewEnrichmentService(db *gorm.DB, cfg *config.Config, logger *zap.Logger, jobs *JobManager, posters *PosterService) *EnrichmentService {
	return &EnrichmentService{
		db:         db,
		config:     cfg,
		logger:     logger,
		jobs:       jobs,
		posters:    posters,
		httpClient: &http.Client{Timeout: cfg.TMDb.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(4), 2), // stay under TMDb's limits
	}
}

// Enabled reports whether TMDb metadata lookups are configured.
func (s *EnrichmentService) Enabled() bool {
	return s.config.TMDb.APIKey != ""
}

// StartPosterScrape admits a scrape job and runs it in the background.
func (s *EnrichmentService) StartPosterScrape() (*models.ImportJob, error) {
	job, ctx, err := s.jobs.Begin(models.JobKindPosterScrape)
	if err != nil {
		return nil, err
	}

	go s.runScrape(ctx, job.ID)
	return job, nil
}

func (s *EnrichmentService) runScrape(ctx context.Context, jobID uint) {
	enriched, analyzed, err := s.scrape(ctx, jobID)
	switch {
	case err == context.Canceled:
		s.jobs.Finish(jobID, models.JobStopped, "")
	case err != nil:
		s.jobs.Finish(jobID, models.JobFailed, err.Error())
	default:
		s.jobs.Finish(jobID, models.JobCompleted, "")
		s.logger.Info("Poster scrape completed",
			zap.Int("enriched", enriched), zap.Int("analyzed", analyzed))
	}
}

// scrape walks every rated movie, enriching metadata where missing and
// analyzing any poster that has no stored analysis yet. Per-movie
// failures are logged and skipped, never fatal.
func (s *EnrichmentService) scrape(ctx context.Context, jobID uint) (int, int, error) {
	rows, err := database.AllRatedMovies(s.db)
	if err != nil {
		return 0, 0, err
	}

	var enriched, analyzed int
	for i, row := range rows {
		select {
		case <-ctx.Done():
			return enriched, analyzed, context.Canceled
		default:
		}

		movie := row.Movie
		s.jobs.Progress(jobID, i+1, len(rows), movie.Title)

		if s.Enabled() && (movie.PosterURL == nil || movie.Plot == nil) {
			if err := s.enrichMovie(ctx, &movie); err != nil {
				s.logger.Warn("Metadata enrichment failed",
					zap.String("imdb_id", movie.IMDbID), zap.Error(err))
			} else {
				enriched++
			}
		}

		if movie.PosterURL == nil || *movie.PosterURL == "" {
			continue
		}

		var existing int64
		if err := s.db.Model(&models.PosterAnalysis{}).
			Where("movie_id = ?", movie.ID).Count(&existing).Error; err != nil {
			return enriched, analyzed, err
		}
		if existing > 0 {
			continue
		}

		if err := s.posters.AnalyzeMovie(ctx, &movie); err != nil {
			if ctx.Err() != nil {
				return enriched, analyzed, context.Canceled
			}
			s.logger.Warn("Poster analysis failed",
				zap.String("imdb_id", movie.IMDbID), zap.Error(err))
			continue
		}
		analyzed++
	}

	return enriched, analyzed, nil
}

type tmdbMovieResult struct {
	PosterPath       string `json:"poster_path"`
	Overview         string `json:"overview"`
	ReleaseDate      string `json:"release_date"`
	OriginalLanguage string `json:"original_language"`
}

type tmdbFindResponse struct {
	MovieResults []tmdbMovieResult `json:"movie_results"`
}

// enrichMovie fills missing metadata on a movie and persists the update.
// Stored values always win over fetched ones.
func (s *EnrichmentService) enrichMovie(ctx context.Context, movie *models.Movie) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	result, err := s.findByIMDbID(ctx, movie.IMDbID)
	if err != nil {
		return err
	}
	if result == nil {
		return fmt.Errorf("no TMDb match for %s", movie.IMDbID)
	}

	updates := make(map[string]interface{})
	if movie.PosterURL == nil && result.PosterPath != "" {
		posterURL := tmdbPosterBaseURL + result.PosterPath
		movie.PosterURL = &posterURL
		updates["poster_url"] = posterURL
	}
	if movie.Plot == nil && result.Overview != "" {
		movie.Plot = &result.Overview
		updates["plot"] = result.Overview
	}
	if movie.Language == nil && result.OriginalLanguage != "" {
		movie.Language = &result.OriginalLanguage
		updates["language"] = result.OriginalLanguage
	}
	if movie.ReleaseDate == nil && result.ReleaseDate != "" {
		if t, err := time.Parse("2006-01-02", result.ReleaseDate); err == nil {
			movie.ReleaseDate = &t
			updates["release_date"] = t
		}
	}

	if len(updates) == 0 {
		return nil
	}
	return s.db.Model(&models.Movie{}).Where("id = ?", movie.ID).Updates(updates).Error
}

func (s *EnrichmentService) findByIMDbID(ctx context.Context, imdbID string) (*tmdbMovieResult, error) {
	endpoint := fmt.Sprintf(tmdbFindURL, imdbID)
	query := url.Values{
		"api_key":         {s.config.TMDb.APIKey},
		"external_source": {"imdb_id"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build TMDb request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("TMDb request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("TMDb request failed: status %d", resp.StatusCode)
	}

	var found tmdbFindResponse
	if err := json.NewDecoder(resp.Body).Decode(&found); err != nil {
		return nil, fmt.Errorf("failed to decode TMDb response: %w", err)
	}
	if len(found.MovieResults) == 0 {
		return nil, nil
	}
	return &found.MovieResults[0], nil
}
