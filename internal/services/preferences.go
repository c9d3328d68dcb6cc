package services

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"cinescope/internal/config"
	"cinescope/internal/database"
	"cinescope/internal/models"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// noDataInsight is the placeholder insight when an analysis runs before
// any ratings exist. Empty results are never cached, so the first import
// is picked up without a forced regeneration.
const noDataInsight = "No data available yet. Import your ratings to get started."

// PreferenceService computes the statistical preference analyses. Results
// are memoized in cached_analyses and recomputed only on request.
type PreferenceService struct {
	db     *gorm.DB
	config *config.Config
	logger *zap.Logger
}

// NewPreferenceService creates a preference service.
func NewPreferenceService(db *gorm.DB, cfg *config.Config, logger *zap.Logger) *PreferenceService {
	return &PreferenceService{db: db, config: cfg, logger: logger}
}

// Genres returns the genre preference analysis.
func (s *PreferenceService) Genres(force bool) (*models.GenreAnalysis, error) {
	var cached models.GenreAnalysis
	if !force {
		if ok, err := loadCache(s.db, models.AnalysisGenres, &cached); err != nil {
			return nil, err
		} else if ok {
			return &cached, nil
		}
	}

	rows, err := database.AllRatedMovies(s.db)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &models.GenreAnalysis{
			FavoriteGenres:      []models.GenreStat{},
			LeastFavoriteGenres: []models.GenreStat{},
			GenreDistribution:   map[string]int{},
			Insights:            noDataInsight,
		}, nil
	}

	type acc struct {
		count int
		sum   int
	}
	byGenre := make(map[string]*acc)
	var withGenres int
	for _, row := range rows {
		if len(row.Movie.Genres) > 0 {
			withGenres++
		}
		for _, genre := range row.Movie.Genres {
			a := byGenre[genre]
			if a == nil {
				a = &acc{}
				byGenre[genre] = a
			}
			a.count++
			a.sum += row.Rating
		}
	}

	stats := make([]models.GenreStat, 0, len(byGenre))
	distribution := make(map[string]int, len(byGenre))
	for genre, a := range byGenre {
		distribution[genre] = a.count
		stats = append(stats, models.GenreStat{
			Genre:         genre,
			Count:         a.count,
			AverageRating: round2(float64(a.sum) / float64(a.count)),
			// only movies that carry genre data enter the denominator
			Percentage: round2(float64(a.count) / float64(withGenres) * 100),
		})
	}

	sortByRating(stats, func(st models.GenreStat) (float64, int, string) {
		return st.AverageRating, st.Count, st.Genre
	})

	favorites := topN(stats, 5)
	least := bottomNReversed(stats, 5)

	analysis := &models.GenreAnalysis{
		FavoriteGenres:      favorites,
		LeastFavoriteGenres: least,
		GenreDistribution:   distribution,
		Insights:            genreInsight(len(rows), favorites),
	}
	if err := saveCache(s.db, models.AnalysisGenres, analysis); err != nil {
		return nil, err
	}
	return analysis, nil
}

// Years returns the release-year and decade preference analysis.
func (s *PreferenceService) Years(force bool) (*models.YearAnalysis, error) {
	var cached models.YearAnalysis
	if !force {
		if ok, err := loadCache(s.db, models.AnalysisYears, &cached); err != nil {
			return nil, err
		} else if ok {
			return &cached, nil
		}
	}

	rows, err := database.AllRatedMovies(s.db)
	if err != nil {
		return nil, err
	}

	type acc struct {
		count int
		sum   int
	}
	byYear := make(map[int]*acc)
	byDecade := make(map[int]*acc)
	var total int
	for _, row := range rows {
		if row.Movie.Year == nil {
			continue
		}
		total++
		year := *row.Movie.Year
		if a := byYear[year]; a != nil {
			a.count++
			a.sum += row.Rating
		} else {
			byYear[year] = &acc{count: 1, sum: row.Rating}
		}
		decade := (year / 10) * 10
		if a := byDecade[decade]; a != nil {
			a.count++
			a.sum += row.Rating
		} else {
			byDecade[decade] = &acc{count: 1, sum: row.Rating}
		}
	}
	if total == 0 {
		return &models.YearAnalysis{
			YearDistribution:  []models.YearStat{},
			DecadePreferences: []models.DecadeStat{},
			FavoriteDecades:   []string{},
			Insights:          noDataInsight,
		}, nil
	}

	years := make([]models.YearStat, 0, len(byYear))
	for year, a := range byYear {
		years = append(years, models.YearStat{
			Year:          year,
			Count:         a.count,
			AverageRating: round2(float64(a.sum) / float64(a.count)),
		})
	}
	sort.Slice(years, func(i, j int) bool { return years[i].Year < years[j].Year })

	decades := make([]models.DecadeStat, 0, len(byDecade))
	for decade, a := range byDecade {
		decades = append(decades, models.DecadeStat{
			Decade:        fmt.Sprintf("%ds", decade),
			Count:         a.count,
			AverageRating: round2(float64(a.sum) / float64(a.count)),
			Percentage:    round2(float64(a.count) / float64(total) * 100),
		})
	}
	sortByRating(decades, func(st models.DecadeStat) (float64, int, string) {
		return st.AverageRating, st.Count, st.Decade
	})

	favorites := make([]string, 0, 3)
	for _, d := range topN(decades, 3) {
		favorites = append(favorites, d.Decade)
	}

	analysis := &models.YearAnalysis{
		YearDistribution:  years,
		DecadePreferences: decades,
		FavoriteDecades:   favorites,
		Insights:          yearInsight(total, decades),
	}
	if err := saveCache(s.db, models.AnalysisYears, analysis); err != nil {
		return nil, err
	}
	return analysis, nil
}

// runtimeBucket defines one runtime class. Max is exclusive of the next
// bucket's min; the last bucket is unbounded.
type runtimeBucket struct {
	label string
	min   int
	max   int // -1 means unbounded
}

var runtimeBuckets = []runtimeBucket{
	{label: "Short (under 90 min)", min: 0, max: 89},
	{label: "Standard (90-119 min)", min: 90, max: 119},
	{label: "Long (120-149 min)", min: 120, max: 149},
	{label: "Epic (150+ min)", min: 150, max: -1},
}

// Runtime returns the runtime-length preference analysis.
func (s *PreferenceService) Runtime(force bool) (*models.RuntimeAnalysis, error) {
	var cached models.RuntimeAnalysis
	if !force {
		if ok, err := loadCache(s.db, models.AnalysisRuntime, &cached); err != nil {
			return nil, err
		} else if ok {
			return &cached, nil
		}
	}

	rows, err := database.AllRatedMovies(s.db)
	if err != nil {
		return nil, err
	}

	type acc struct {
		count int
		sum   int
	}
	buckets := make([]acc, len(runtimeBuckets))
	var total, runtimeSum int
	for _, row := range rows {
		if row.Movie.RuntimeMinutes == nil {
			continue
		}
		minutes := *row.Movie.RuntimeMinutes
		total++
		runtimeSum += minutes
		for i, b := range runtimeBuckets {
			if minutes >= b.min && (b.max < 0 || minutes <= b.max) {
				buckets[i].count++
				buckets[i].sum += row.Rating
				break
			}
		}
	}
	if total == 0 {
		return &models.RuntimeAnalysis{
			RuntimeDistribution: []models.RuntimeStat{},
			PreferredLength:     "Unknown",
			Insights:            noDataInsight,
		}, nil
	}

	distribution := make([]models.RuntimeStat, 0, len(runtimeBuckets))
	for i, b := range runtimeBuckets {
		if buckets[i].count == 0 {
			continue
		}
		distribution = append(distribution, models.RuntimeStat{
			RuntimeRange:  b.label,
			Count:         buckets[i].count,
			AverageRating: round2(float64(buckets[i].sum) / float64(buckets[i].count)),
			Percentage:    round2(float64(buckets[i].count) / float64(total) * 100),
		})
	}

	preferred := distribution[0]
	for _, st := range distribution[1:] {
		if st.AverageRating > preferred.AverageRating ||
			(st.AverageRating == preferred.AverageRating && st.Count > preferred.Count) {
			preferred = st
		}
	}

	analysis := &models.RuntimeAnalysis{
		RuntimeDistribution: distribution,
		PreferredLength:     preferred.RuntimeRange,
		AverageRuntime:      round1(float64(runtimeSum) / float64(total)),
		Insights:            runtimeInsight(preferred, float64(runtimeSum)/float64(total)),
	}
	if err := saveCache(s.db, models.AnalysisRuntime, analysis); err != nil {
		return nil, err
	}
	return analysis, nil
}

// Cast returns the actor and director preference analysis. Only people
// appearing in at least two rated movies qualify.
func (s *PreferenceService) Cast(force bool) (*models.CastAnalysis, error) {
	var cached models.CastAnalysis
	if !force {
		if ok, err := loadCache(s.db, models.AnalysisCast, &cached); err != nil {
			return nil, err
		} else if ok {
			return &cached, nil
		}
	}

	rows, err := database.AllRatedMovies(s.db)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &models.CastAnalysis{
			FavoriteActors:    []models.PersonStat{},
			FavoriteDirectors: []models.PersonStat{},
			ActorInsights:     noDataInsight,
			DirectorInsights:  noDataInsight,
		}, nil
	}

	var actorRows []models.CastMember
	if err := s.db.Where("role = ?", models.RoleActor).Find(&actorRows).Error; err != nil {
		return nil, err
	}
	actorsByMovie := make(map[uint][]string)
	for _, m := range actorRows {
		actorsByMovie[m.MovieID] = append(actorsByMovie[m.MovieID], m.Name)
	}

	type acc struct {
		count  int
		sum    int
		movies []string
	}
	actors := make(map[string]*acc)
	directors := make(map[string]*acc)

	record := func(m map[string]*acc, name, title string, rating int) {
		a := m[name]
		if a == nil {
			a = &acc{}
			m[name] = a
		}
		a.count++
		a.sum += rating
		a.movies = append(a.movies, title)
	}

	for _, row := range rows {
		seen := make(map[string]struct{})
		for _, name := range actorsByMovie[row.Movie.ID] {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			record(actors, name, row.Movie.Title, row.Rating)
		}
		if row.Movie.Director != nil && *row.Movie.Director != "" {
			record(directors, *row.Movie.Director, row.Movie.Title, row.Rating)
		}
	}

	rank := func(m map[string]*acc) []models.PersonStat {
		stats := make([]models.PersonStat, 0, len(m))
		for name, a := range m {
			if a.count < 2 {
				continue
			}
			titles := a.movies
			if len(titles) > 5 {
				titles = titles[:5]
			}
			stats = append(stats, models.PersonStat{
				Name:          name,
				Count:         a.count,
				AverageRating: round2(float64(a.sum) / float64(a.count)),
				Movies:        titles,
			})
		}
		sortByRating(stats, func(st models.PersonStat) (float64, int, string) {
			return st.AverageRating, st.Count, st.Name
		})
		return topN(stats, 10)
	}

	favoriteActors := rank(actors)
	favoriteDirectors := rank(directors)

	analysis := &models.CastAnalysis{
		FavoriteActors:    favoriteActors,
		FavoriteDirectors: favoriteDirectors,
		ActorInsights:     personInsight("actors", favoriteActors),
		DirectorInsights:  personInsight("directors", favoriteDirectors),
	}
	if err := saveCache(s.db, models.AnalysisCast, analysis); err != nil {
		return nil, err
	}
	return analysis, nil
}

// loadCache fetches and decodes a memoized analysis.
func loadCache(db *gorm.DB, kind string, dest interface{}) (bool, error) {
	var cached models.CachedAnalysis
	err := db.Where("analysis_type = ?", kind).First(&cached).Error
	if err == gorm.ErrRecordNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(cached.Payload, dest); err != nil {
		return false, fmt.Errorf("failed to decode cached %s analysis: %w", kind, err)
	}
	return true, nil
}

// saveCache upserts a memoized analysis by kind.
func saveCache(db *gorm.DB, kind string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s analysis: %w", kind, err)
	}

	var existing models.CachedAnalysis
	err = db.Where("analysis_type = ?", kind).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return db.Create(&models.CachedAnalysis{
			AnalysisType: kind,
			Payload:      datatypes.JSON(data),
		}).Error
	}
	if err != nil {
		return err
	}
	return db.Model(&existing).Updates(map[string]interface{}{
		"payload":    datatypes.JSON(data),
		"created_at": time.Now().UTC(),
	}).Error
}

// clearCache removes memoized analyses. With no kinds given, all go.
func clearCache(db *gorm.DB, kinds ...string) error {
	q := db.Session(&gorm.Session{AllowGlobalUpdate: true})
	if len(kinds) > 0 {
		q = db.Where("analysis_type IN ?", kinds)
	}
	return q.Delete(&models.CachedAnalysis{}).Error
}

// sortByRating orders stats by average rating descending, then count
// descending, then name ascending so equal metrics rank deterministically.
func sortByRating[T any](stats []T, key func(T) (float64, int, string)) {
	sort.SliceStable(stats, func(i, j int) bool {
		ri, ci, ni := key(stats[i])
		rj, cj, nj := key(stats[j])
		if ri != rj {
			return ri > rj
		}
		if ci != cj {
			return ci > cj
		}
		return ni < nj
	})
}

func topN[T any](stats []T, n int) []T {
	if len(stats) > n {
		stats = stats[:n]
	}
	out := make([]T, len(stats))
	copy(out, stats)
	return out
}

// bottomNReversed takes the lowest-ranked n entries, worst first.
func bottomNReversed[T any](stats []T, n int) []T {
	if len(stats) > n {
		stats = stats[len(stats)-n:]
	}
	out := make([]T, 0, len(stats))
	for i := len(stats) - 1; i >= 0; i-- {
		out = append(out, stats[i])
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
