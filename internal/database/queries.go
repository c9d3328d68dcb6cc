package database

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"cinescope/internal/models"

	"gorm.io/gorm"
)

// RatedMovie is one row of the movie/rating join that nearly every
// analysis and tool operates on.
type RatedMovie struct {
	Movie   models.Movie
	Rating  int
	Review  *string
	RatedAt *time.Time
}

// RatedMovieFilter narrows and orders the rated-movie join. Zero values
// mean "no constraint". Search matches title, director, and cast names.
type RatedMovieFilter struct {
	Search        string
	Genres        []string // OR semantics
	YearMin       *int
	YearMax       *int
	RatingMin     *int
	RatingMax     *int
	IMDbRatingMin *float64
	IMDbRatingMax *float64
	RuntimeMin    *int
	RuntimeMax    *int
	SortBy        string // rating, rated_at, title, year, imdb_rating, runtime_minutes
	Order         string // asc, desc
	Offset        int
	Limit         int
}

var sortColumns = map[string]string{
	"rating":          "user_ratings.rating",
	"rated_at":        "user_ratings.rated_at",
	"title":           "movies.title",
	"year":            "movies.year",
	"imdb_rating":     "movies.imdb_rating",
	"runtime":         "movies.runtime_minutes",
	"runtime_minutes": "movies.runtime_minutes",
}

// QueryRatedMovies returns the filtered join plus the total match count
// before pagination.
func QueryRatedMovies(db *gorm.DB, f RatedMovieFilter) ([]RatedMovie, int64, error) {
	q := db.Model(&models.UserRating{}).
		Joins("JOIN movies ON movies.id = user_ratings.movie_id")

	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		castSub := db.Model(&models.CastMember{}).
			Select("movie_id").
			Where("name LIKE ?", pattern)
		q = q.Where("movies.title LIKE ? OR movies.director LIKE ? OR movies.id IN (?)",
			pattern, pattern, castSub)
	}

	if len(f.Genres) > 0 {
		// Genres are stored as a JSON array; match the quoted element so
		// "Drama" doesn't also match "Dramatic".
		genreCond := db.Where("movies.genres LIKE ?", genrePattern(f.Genres[0]))
		for _, g := range f.Genres[1:] {
			genreCond = genreCond.Or("movies.genres LIKE ?", genrePattern(g))
		}
		q = q.Where(genreCond)
	}

	if f.YearMin != nil {
		q = q.Where("movies.year >= ?", *f.YearMin)
	}
	if f.YearMax != nil {
		q = q.Where("movies.year <= ?", *f.YearMax)
	}
	if f.RatingMin != nil {
		q = q.Where("user_ratings.rating >= ?", *f.RatingMin)
	}
	if f.RatingMax != nil {
		q = q.Where("user_ratings.rating <= ?", *f.RatingMax)
	}
	if f.IMDbRatingMin != nil {
		q = q.Where("movies.imdb_rating >= ?", *f.IMDbRatingMin)
	}
	if f.IMDbRatingMax != nil {
		q = q.Where("movies.imdb_rating <= ?", *f.IMDbRatingMax)
	}
	if f.RuntimeMin != nil {
		q = q.Where("movies.runtime_minutes >= ?", *f.RuntimeMin)
	}
	if f.RuntimeMax != nil {
		q = q.Where("movies.runtime_minutes <= ?", *f.RuntimeMax)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count rated movies: %w", err)
	}

	column, ok := sortColumns[f.SortBy]
	if !ok {
		column = sortColumns["rating"]
	}
	direction := "DESC"
	if strings.EqualFold(f.Order, "asc") {
		direction = "ASC"
	}
	q = q.Order(fmt.Sprintf("%s %s", column, direction)).Order("user_ratings.movie_id ASC")

	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var ratings []models.UserRating
	if err := q.Select("user_ratings.*").Find(&ratings).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to query rated movies: %w", err)
	}

	rows, err := attachMovies(db, ratings)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// AllRatedMovies returns the full join unfiltered, rating descending.
func AllRatedMovies(db *gorm.DB) ([]RatedMovie, error) {
	rows, _, err := QueryRatedMovies(db, RatedMovieFilter{})
	return rows, err
}

func genrePattern(genre string) string {
	return `%"` + genre + `"%`
}

func attachMovies(db *gorm.DB, ratings []models.UserRating) ([]RatedMovie, error) {
	if len(ratings) == 0 {
		return []RatedMovie{}, nil
	}

	ids := make([]uint, 0, len(ratings))
	for _, r := range ratings {
		ids = append(ids, r.MovieID)
	}

	var movies []models.Movie
	if err := db.Where("id IN ?", ids).Find(&movies).Error; err != nil {
		return nil, fmt.Errorf("failed to load movies for ratings: %w", err)
	}
	byID := make(map[uint]models.Movie, len(movies))
	for _, m := range movies {
		byID[m.ID] = m
	}

	rows := make([]RatedMovie, 0, len(ratings))
	for _, r := range ratings {
		movie, ok := byID[r.MovieID]
		if !ok {
			continue // rating orphaned mid-query, skip
		}
		rows = append(rows, RatedMovie{
			Movie:   movie,
			Rating:  r.Rating,
			Review:  r.Review,
			RatedAt: r.RatedAt,
		})
	}
	return rows, nil
}

// DistinctGenres returns every genre present across rated movies,
// alphabetically.
func DistinctGenres(db *gorm.DB) ([]string, error) {
	rows, err := AllRatedMovies(db)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, row := range rows {
		for _, g := range row.Movie.Genres {
			seen[g] = struct{}{}
		}
	}

	genres := make([]string, 0, len(seen))
	for g := range seen {
		genres = append(genres, g)
	}
	sort.Strings(genres)
	return genres, nil
}

// CountRatings returns the number of rated movies.
func CountRatings(db *gorm.DB) (int64, error) {
	var n int64
	err := db.Model(&models.UserRating{}).Count(&n).Error
	return n, err
}
