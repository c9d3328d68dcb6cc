package services

import (
	"path/filepath"
	"testing"
	"time"

	"cinescope/internal/config"
	"cinescope/internal/database"
	"cinescope/internal/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

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
	}
}

type seedOpts struct {
	runtime  *int
	ratedAt  *time.Time
	noYear   bool
	director string
}

func seedRated(t *testing.T, db *gorm.DB, imdbID, title string, year, rating int, genres []string, opts *seedOpts) models.Movie {
	t.Helper()
	movie := models.Movie{
		IMDbID: imdbID,
		Title:  title,
		Genres: genres,
	}
	if opts == nil {
		opts = &seedOpts{}
	}
	if !opts.noYear {
		movie.Year = &year
	}
	if opts.runtime != nil {
		movie.RuntimeMinutes = opts.runtime
	}
	if opts.director != "" {
		movie.Director = &opts.director
	}
	require.NoError(t, db.Create(&movie).Error)
	require.NoError(t, db.Create(&models.UserRating{
		MovieID: movie.ID,
		Rating:  rating,
		RatedAt: opts.ratedAt,
	}).Error)
	return movie
}

func intPtr(v int) *int { return &v }

func nopLogger() *zap.Logger { return zap.NewNop() }
