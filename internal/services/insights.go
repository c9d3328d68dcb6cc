package services

import (
	"context"
	"fmt"
	"strings"

	"cinescope/internal/config"
	"cinescope/internal/database"
	"cinescope/internal/llm"
	"cinescope/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Per-kind insight sentences. Deterministic templates so analyses stay
// reproducible without an LLM; the LLM only adds optional elaboration.

func genreInsight(total int, favorites []models.GenreStat) string {
	if len(favorites) == 0 {
		return fmt.Sprintf("You have rated %d movies but no genre information is available yet.", total)
	}
	top := favorites[0]
	return fmt.Sprintf("Across %d rated movies your strongest genre is %s, averaging %.2f. You rated %d %s titles.",
		total, top.Genre, top.AverageRating, top.Count, top.Genre)
}

func yearInsight(total int, decades []models.DecadeStat) string {
	if len(decades) == 0 {
		return "No release-year information is available yet."
	}
	top := decades[0]
	return fmt.Sprintf("Your favorite era is the %s with %d movies averaging %.2f out of %d titles with a known year.",
		top.Decade, top.Count, top.AverageRating, total)
}

func runtimeInsight(preferred models.RuntimeStat, avgRuntime float64) string {
	return fmt.Sprintf("You rate %s movies highest, averaging %.2f. Your typical movie runs about %.0f minutes.",
		strings.ToLower(firstWord(preferred.RuntimeRange)), preferred.AverageRating, avgRuntime)
}

func personInsight(kind string, people []models.PersonStat) string {
	if len(people) == 0 {
		return fmt.Sprintf("Not enough repeat %s in your collection to rank yet.", kind)
	}
	top := people[0]
	return fmt.Sprintf("Among %s you return to, %s ranks first with %d movies averaging %.2f.",
		kind, top.Name, top.Count, top.AverageRating)
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i > 0 {
		return s[:i]
	}
	return s
}

// InsightService synthesizes the cross-kind overall profile and the
// recommendation list. The LLM, when configured, elaborates on the
// deterministic synthesis; it never replaces it.
type InsightService struct {
	db          *gorm.DB
	config      *config.Config
	logger      *zap.Logger
	preferences *PreferenceService
	llm         *llm.Client
}

// NewInsightService creates an insight service.
func NewInsightService(db *gorm.DB, cfg *config.Config, logger *zap.Logger, prefs *PreferenceService, client *llm.Client) *InsightService {
	return &InsightService{db: db, config: cfg, logger: logger, preferences: prefs, llm: client}
}

// Overall returns the cross-kind synthesis, computing the underlying
// analyses first if they are not cached yet.
func (s *InsightService) Overall(ctx context.Context, force bool) (*models.OverallInsights, error) {
	var cached models.OverallInsights
	if !force {
		if ok, err := loadCache(s.db, models.AnalysisInsights, &cached); err != nil {
			return nil, err
		} else if ok {
			return &cached, nil
		}
	}

	total, err := database.CountRatings(s.db)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		// empty profile, never cached
		return &models.OverallInsights{
			PersonalityProfile: "Not enough data yet to sketch a viewing personality.",
			ViewingPatterns:    "No viewing patterns detected yet.",
			Recommendations:    []string{},
		}, nil
	}

	genres, err := s.preferences.Genres(force)
	if err != nil {
		return nil, err
	}
	years, err := s.preferences.Years(force)
	if err != nil {
		return nil, err
	}
	runtime, err := s.preferences.Runtime(force)
	if err != nil {
		return nil, err
	}
	cast, err := s.preferences.Cast(force)
	if err != nil {
		return nil, err
	}

	insights := &models.OverallInsights{}

	for _, g := range genres.FavoriteGenres {
		insights.KeyPreferences.Genres.Favorites = append(insights.KeyPreferences.Genres.Favorites, g.Genre)
	}
	for _, g := range genres.LeastFavoriteGenres {
		insights.KeyPreferences.Genres.LeastFavorites = append(insights.KeyPreferences.Genres.LeastFavorites, g.Genre)
	}
	if years != nil {
		insights.KeyPreferences.Decades.Favorites = years.FavoriteDecades
	}
	if runtime != nil {
		insights.KeyPreferences.Runtime.Preferred = runtime.PreferredLength
		insights.KeyPreferences.Runtime.Average = runtime.AverageRuntime
	}
	for _, p := range cast.FavoriteActors {
		insights.KeyPreferences.Cast.FavoriteActors = append(insights.KeyPreferences.Cast.FavoriteActors, p.Name)
	}
	for _, p := range cast.FavoriteDirectors {
		insights.KeyPreferences.Cast.FavoriteDirectors = append(insights.KeyPreferences.Cast.FavoriteDirectors, p.Name)
	}

	insights.PersonalityProfile = personalityProfile(insights.KeyPreferences)
	insights.ViewingPatterns = viewingPatterns(genres, years, runtime)
	insights.Recommendations = buildRecommendations(insights.KeyPreferences, 0)

	if s.llm != nil && s.llm.Enabled() {
		elaboration, err := s.elaborate(ctx, insights)
		if err != nil {
			s.logger.Warn("LLM elaboration unavailable, keeping deterministic insights", zap.Error(err))
		} else {
			insights.Elaboration = elaboration
		}
	}

	if err := saveCache(s.db, models.AnalysisInsights, insights); err != nil {
		return nil, err
	}
	return insights, nil
}

// Recommendations returns up to limit recommendation lines.
func (s *InsightService) Recommendations(ctx context.Context, limit int) ([]string, error) {
	insights, err := s.Overall(ctx, false)
	if err != nil {
		return nil, err
	}
	recs := buildRecommendations(insights.KeyPreferences, limit)
	return recs, nil
}

func personalityProfile(prefs models.KeyPreferences) string {
	var parts []string
	if len(prefs.Genres.Favorites) > 0 {
		parts = append(parts, fmt.Sprintf("You gravitate toward %s", joinNatural(prefs.Genres.Favorites, 3)))
	}
	if len(prefs.Decades.Favorites) > 0 {
		parts = append(parts, fmt.Sprintf("with a clear fondness for the %s", prefs.Decades.Favorites[0]))
	}
	if prefs.Runtime.Preferred != "" {
		parts = append(parts, fmt.Sprintf("and you favor %s films", strings.ToLower(firstWord(prefs.Runtime.Preferred))))
	}
	if len(parts) == 0 {
		return "Not enough data yet to sketch a viewing personality."
	}
	return strings.Join(parts, " ") + "."
}

func viewingPatterns(genres *models.GenreAnalysis, years *models.YearAnalysis, runtime *models.RuntimeAnalysis) string {
	var parts []string
	if genres != nil {
		parts = append(parts, fmt.Sprintf("Your ratings span %d genres", len(genres.GenreDistribution)))
	}
	if years != nil && len(years.YearDistribution) > 0 {
		first := years.YearDistribution[0].Year
		last := years.YearDistribution[len(years.YearDistribution)-1].Year
		parts = append(parts, fmt.Sprintf("covering releases from %d to %d", first, last))
	}
	if runtime != nil {
		parts = append(parts, fmt.Sprintf("with an average runtime of %.0f minutes", runtime.AverageRuntime))
	}
	if len(parts) == 0 {
		return "No viewing patterns detected yet."
	}
	return strings.Join(parts, ", ") + "."
}

// buildRecommendations derives recommendation lines from the key
// preferences. limit <= 0 means no cap.
func buildRecommendations(prefs models.KeyPreferences, limit int) []string {
	var recs []string
	if len(prefs.Genres.Favorites) > 0 {
		recs = append(recs, fmt.Sprintf("Explore more %s films; it is your highest-rated genre.", prefs.Genres.Favorites[0]))
	}
	for _, director := range prefs.Cast.FavoriteDirectors {
		recs = append(recs, fmt.Sprintf("Work through the filmography of %s.", director))
		if len(recs) >= 4 {
			break
		}
	}
	if len(prefs.Decades.Favorites) > 0 {
		recs = append(recs, fmt.Sprintf("Dig deeper into %s cinema beyond what you have already rated.", prefs.Decades.Favorites[0]))
	}
	if len(prefs.Genres.LeastFavorites) > 0 {
		recs = append(recs, fmt.Sprintf("Give %s another chance with a critically acclaimed pick.", prefs.Genres.LeastFavorites[0]))
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}

func (s *InsightService) elaborate(ctx context.Context, insights *models.OverallInsights) (string, error) {
	prompt := fmt.Sprintf(
		"Here is a summary of my movie taste. Favorite genres: %s. Least favorite: %s. "+
			"Favorite decades: %s. Preferred runtime: %s. Favorite directors: %s. Favorite actors: %s. "+
			"In two short paragraphs, describe my taste in movies and what it says about me as a viewer.",
		joinNatural(insights.KeyPreferences.Genres.Favorites, 5),
		joinNatural(insights.KeyPreferences.Genres.LeastFavorites, 3),
		joinNatural(insights.KeyPreferences.Decades.Favorites, 3),
		insights.KeyPreferences.Runtime.Preferred,
		joinNatural(insights.KeyPreferences.Cast.FavoriteDirectors, 5),
		joinNatural(insights.KeyPreferences.Cast.FavoriteActors, 5),
	)
	return s.llm.Complete(ctx, "You are a thoughtful film critic analyzing a viewer's personal ratings.", prompt)
}

func joinNatural(items []string, max int) string {
	if len(items) == 0 {
		return "none"
	}
	if len(items) > max {
		items = items[:max]
	}
	if len(items) == 1 {
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}
