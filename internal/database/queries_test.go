package database_test

import (
	"path/filepath"
	"testing"
	"time"

	"cinescope/internal/database"
	"cinescope/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func seedMovie(t *testing.T, db *gorm.DB, imdbID, title string, year, rating int, genres []string, director string) models.Movie {
	t.Helper()
	movie := models.Movie{
		IMDbID:   imdbID,
		Title:    title,
		Year:     &year,
		Genres:   genres,
		Director: &director,
	}
	require.NoError(t, db.Create(&movie).Error)
	ratedAt := time.Date(2024, 1, int(movie.ID%28)+1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&models.UserRating{
		MovieID: movie.ID,
		Rating:  rating,
		RatedAt: &ratedAt,
	}).Error)
	return movie
}

// The IMDb-prefixed model fields carry explicit column tags; every raw
// query in the codebase addresses them as imdb_*.
func TestIMDbColumnsMatchRawSQL(t *testing.T) {
	db := newTestDB(t)
	movie := seedMovie(t, db, "tt0000001", "Alpha", 1994, 9, []string{"Drama"}, "Frank Darabont")
	rating := 8.7
	votes := 2800000
	require.NoError(t, db.Model(&movie).Updates(models.Movie{IMDbRating: &rating, IMDbVotes: &votes}).Error)

	var found models.Movie
	require.NoError(t, db.Where("imdb_id = ?", "tt0000001").First(&found).Error)
	assert.Equal(t, "Alpha", found.Title)
	require.NotNil(t, found.IMDbRating)
	assert.Equal(t, 8.7, *found.IMDbRating)

	min := 8.0
	rows, total, err := database.QueryRatedMovies(db, database.RatedMovieFilter{IMDbRatingMin: &min})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
}

func TestQueryRatedMoviesUnfiltered(t *testing.T) {
	db := newTestDB(t)
	seedMovie(t, db, "tt0000001", "Alpha", 1994, 9, []string{"Drama"}, "Frank Darabont")
	seedMovie(t, db, "tt0000002", "Beta", 2008, 7, []string{"Action", "Crime"}, "Christopher Nolan")

	rows, total, err := database.QueryRatedMovies(db, database.RatedMovieFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, rows, 2)
	// default sort is rating descending
	assert.Equal(t, "Alpha", rows[0].Movie.Title)
	assert.Equal(t, 9, rows[0].Rating)
}

func TestQueryRatedMoviesGenreFilter(t *testing.T) {
	db := newTestDB(t)
	seedMovie(t, db, "tt0000001", "Alpha", 1994, 9, []string{"Drama"}, "A")
	seedMovie(t, db, "tt0000002", "Beta", 2008, 7, []string{"Action", "Crime"}, "B")
	seedMovie(t, db, "tt0000003", "Gamma", 2010, 8, []string{"Dramatic Arts"}, "C")

	rows, total, err := database.QueryRatedMovies(db, database.RatedMovieFilter{
		Genres: []string{"Drama", "Crime"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	var titles []string
	for _, row := range rows {
		titles = append(titles, row.Movie.Title)
	}
	// quoted-element matching must not catch the "Dramatic Arts" movie
	assert.ElementsMatch(t, []string{"Alpha", "Beta"}, titles)
}

func TestQueryRatedMoviesSearchMatchesCast(t *testing.T) {
	db := newTestDB(t)
	movie := seedMovie(t, db, "tt0000001", "Alpha", 1994, 9, []string{"Drama"}, "Frank Darabont")
	seedMovie(t, db, "tt0000002", "Beta", 2008, 7, []string{"Action"}, "Someone Else")
	require.NoError(t, db.Create(&models.CastMember{
		MovieID: movie.ID,
		Name:    "Morgan Freeman",
		Role:    models.RoleActor,
	}).Error)

	rows, total, err := database.QueryRatedMovies(db, database.RatedMovieFilter{Search: "freeman"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
	assert.Equal(t, "Alpha", rows[0].Movie.Title)
}

func TestQueryRatedMoviesRangeAndPagination(t *testing.T) {
	db := newTestDB(t)
	for i := 1; i <= 5; i++ {
		seedMovie(t, db, "tt000000"+string(rune('0'+i)), "Movie"+string(rune('A'+i)), 1990+i, i+4, []string{"Drama"}, "D")
	}

	min := 6
	rows, total, err := database.QueryRatedMovies(db, database.RatedMovieFilter{
		RatingMin: &min,
		SortBy:    "rating",
		Order:     "asc",
		Limit:     2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, rows, 2)
	assert.Equal(t, 6, rows[0].Rating)
	assert.Equal(t, 7, rows[1].Rating)
}

func TestDistinctGenres(t *testing.T) {
	db := newTestDB(t)
	seedMovie(t, db, "tt0000001", "Alpha", 1994, 9, []string{"Drama", "Crime"}, "A")
	seedMovie(t, db, "tt0000002", "Beta", 2008, 7, []string{"Action", "Crime"}, "B")

	genres, err := database.DistinctGenres(db)
	require.NoError(t, err)
	assert.Equal(t, []string{"Action", "Crime", "Drama"}, genres)
}

func TestCountRatings(t *testing.T) {
	db := newTestDB(t)
	n, err := database.CountRatings(db)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	seedMovie(t, db, "tt0000001", "Alpha", 1994, 9, []string{"Drama"}, "A")
	n, err = database.CountRatings(db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
