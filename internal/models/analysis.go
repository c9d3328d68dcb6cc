package models

// Typed payloads for each CachedAnalysis kind. Each kind serializes
// through its own stable schema rather than an untyped blob.

// GenreStat is one genre's aggregate over the rated corpus.
type GenreStat struct {
	Genre         string  `json:"genre"`
	Count         int     `json:"count"`
	AverageRating float64 `json:"average_rating"`
	Percentage    float64 `json:"percentage"`
}

// GenreAnalysis summarizes genre preferences. Percentages are relative to
// rated movies, so with multi-genre titles they sum past 100.
type GenreAnalysis struct {
	FavoriteGenres      []GenreStat    `json:"favorite_genres"`
	LeastFavoriteGenres []GenreStat    `json:"least_favorite_genres"` // worst first
	GenreDistribution   map[string]int `json:"genre_distribution"`
	Insights            string         `json:"insights"`
}

// YearStat is one release year's aggregate.
type YearStat struct {
	Year          int     `json:"year"`
	Count         int     `json:"count"`
	AverageRating float64 `json:"average_rating"`
}

// DecadeStat is one decade's aggregate, labeled like "1990s".
type DecadeStat struct {
	Decade        string  `json:"decade"`
	Count         int     `json:"count"`
	AverageRating float64 `json:"average_rating"`
	Percentage    float64 `json:"percentage"`
}

// YearAnalysis summarizes year and decade preferences.
type YearAnalysis struct {
	YearDistribution  []YearStat   `json:"year_distribution"`  // year ascending
	DecadePreferences []DecadeStat `json:"decade_preferences"` // mean rating descending
	FavoriteDecades   []string     `json:"favorite_decades"`
	Insights          string       `json:"insights"`
}

// RuntimeStat is one runtime bucket's aggregate. Buckets with no members
// are omitted entirely.
type RuntimeStat struct {
	RuntimeRange  string  `json:"runtime_range"`
	Count         int     `json:"count"`
	AverageRating float64 `json:"average_rating"`
	Percentage    float64 `json:"percentage"`
}

// RuntimeAnalysis summarizes runtime-length preferences.
type RuntimeAnalysis struct {
	RuntimeDistribution []RuntimeStat `json:"runtime_distribution"`
	PreferredLength     string        `json:"preferred_length"`
	AverageRuntime      float64       `json:"average_runtime"`
	Insights            string        `json:"insights"`
}

// PersonStat is one actor's or director's aggregate. Only people with at
// least two rated movies qualify.
type PersonStat struct {
	Name          string   `json:"name"`
	Count         int      `json:"count"`
	AverageRating float64  `json:"average_rating"`
	Movies        []string `json:"movies"` // up to 5 example titles
}

// CastAnalysis summarizes actor and director preferences.
type CastAnalysis struct {
	FavoriteActors    []PersonStat `json:"favorite_actors"`
	FavoriteDirectors []PersonStat `json:"favorite_directors"`
	ActorInsights     string       `json:"actor_insights"`
	DirectorInsights  string       `json:"director_insights"`
}

// ColorStat is one named poster color's aggregate.
type ColorStat struct {
	ColorName     string  `json:"color_name"`
	RGBValues     RGB     `json:"rgb_values"`
	Frequency     int     `json:"frequency"`
	AverageRating float64 `json:"average_rating"`
}

// StyleStat is one poster style tag's aggregate.
type StyleStat struct {
	Style         string  `json:"style"`
	Count         int     `json:"count"`
	AverageRating float64 `json:"average_rating"`
	Percentage    float64 `json:"percentage"`
}

// PosterStyleAnalysis summarizes poster visual-style preferences. The
// color names and category boundaries come from hand-tuned heuristics and
// should be read as approximate, not authoritative.
type PosterStyleAnalysis struct {
	DominantColors       []ColorStat `json:"dominant_colors"`
	StylePreferences     []StyleStat `json:"style_preferences"`
	BrightnessPreference string      `json:"brightness_preference"` // dark, medium, bright
	ContrastPreference   string      `json:"contrast_preference"`   // low, medium, high
	Insights             string      `json:"insights"`
	Elaboration          string      `json:"elaboration,omitempty"`
}

// KeyPreferences is the cross-kind summary fed to the LLM elaboration and
// returned with the overall insights.
type KeyPreferences struct {
	Genres struct {
		Favorites      []string `json:"favorites"`
		LeastFavorites []string `json:"least_favorites"`
	} `json:"genres"`
	Decades struct {
		Favorites []string `json:"favorites"`
	} `json:"decades"`
	Runtime struct {
		Preferred string  `json:"preferred"`
		Average   float64 `json:"average"`
	} `json:"runtime"`
	Cast struct {
		FavoriteActors    []string `json:"favorite_actors"`
		FavoriteDirectors []string `json:"favorite_directors"`
	} `json:"cast"`
}

// OverallInsights is the cross-kind synthesis.
type OverallInsights struct {
	PersonalityProfile string         `json:"personality_profile"`
	ViewingPatterns    string         `json:"viewing_patterns"`
	Recommendations    []string       `json:"recommendations"`
	KeyPreferences     KeyPreferences `json:"key_preferences"`
	Elaboration        string         `json:"elaboration,omitempty"`
}
