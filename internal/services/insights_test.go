package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedInsightData(t *testing.T, db *gorm.DB) {
	t.Helper()
	seedRated(t, db, "tt0000001", "Heat", 1995, 9, []string{"Crime", "Thriller"},
		&seedOpts{runtime: intPtr(170), director: "Michael Mann"})
	seedRated(t, db, "tt0000002", "Collateral", 2004, 8, []string{"Crime"},
		&seedOpts{runtime: intPtr(120), director: "Michael Mann"})
	seedRated(t, db, "tt0000003", "The Room", 2003, 2, []string{"Drama"},
		&seedOpts{runtime: intPtr(99), director: "Tommy Wiseau"})
}

func newInsights(t *testing.T) (*InsightService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	cfg := testConfig()
	prefs := NewPreferenceService(db, cfg, nopLogger())
	return NewInsightService(db, cfg, nopLogger(), prefs, nil), db
}

func TestOverallInsights(t *testing.T) {
	svc, db := newInsights(t)
	seedInsightData(t, db)

	insights, err := svc.Overall(context.Background(), false)
	require.NoError(t, err)

	// Thriller's single 9 edges out Crime's 8.5 average
	assert.Equal(t, "Thriller", insights.KeyPreferences.Genres.Favorites[0])
	assert.Contains(t, insights.KeyPreferences.Genres.Favorites, "Crime")
	assert.Contains(t, insights.KeyPreferences.Genres.LeastFavorites, "Drama")
	assert.Contains(t, insights.KeyPreferences.Cast.FavoriteDirectors, "Michael Mann")
	assert.NotEmpty(t, insights.KeyPreferences.Runtime.Preferred)
	assert.NotEmpty(t, insights.PersonalityProfile)
	assert.NotEmpty(t, insights.ViewingPatterns)
	assert.NotEmpty(t, insights.Recommendations)
	// no LLM configured, so no elaboration
	assert.Empty(t, insights.Elaboration)
}

func TestOverallInsightsCached(t *testing.T) {
	svc, db := newInsights(t)
	seedInsightData(t, db)

	first, err := svc.Overall(context.Background(), false)
	require.NoError(t, err)

	seedRated(t, db, "tt0000004", "Alien", 1979, 10, []string{"Horror"},
		&seedOpts{director: "Ridley Scott"})

	cached, err := svc.Overall(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, first.KeyPreferences, cached.KeyPreferences)
}

func TestOverallInsightsNoData(t *testing.T) {
	svc, _ := newInsights(t)
	insights, err := svc.Overall(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, insights.KeyPreferences.Genres.Favorites)
	assert.Empty(t, insights.Recommendations)
	assert.Contains(t, insights.PersonalityProfile, "Not enough data")
}

func TestRecommendationsLimit(t *testing.T) {
	svc, db := newInsights(t)
	seedInsightData(t, db)

	recs, err := svc.Recommendations(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Contains(t, recs[0], "Thriller")
}

func TestJoinNatural(t *testing.T) {
	assert.Equal(t, "none", joinNatural(nil, 3))
	assert.Equal(t, "a", joinNatural([]string{"a"}, 3))
	assert.Equal(t, "a and b", joinNatural([]string{"a", "b"}, 3))
	assert.Equal(t, "a, b and c", joinNatural([]string{"a", "b", "c", "d"}, 3))
}
