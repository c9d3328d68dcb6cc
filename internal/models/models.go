package models

import (
	"time"

	"gorm.io/datatypes"
)

// RGB is a dominant-color triple as stored in poster analyses.
type RGB [3]int

// Movie is a catalogued title from the user's rating export.
// Created on first CSV encounter, updated opportunistically by enrichment.
type Movie struct {
	ID             uint                        `gorm:"primaryKey" json:"id"`
	IMDbID         string                      `gorm:"column:imdb_id;uniqueIndex;not null" json:"imdb_id"`
	Title          string                      `gorm:"type:varchar(500);not null" json:"title"`
	OriginalTitle  *string                     `gorm:"type:varchar(500)" json:"original_title,omitempty"`
	TitleType      *string                     `gorm:"type:varchar(100)" json:"title_type,omitempty"` // Movie, TV Movie, Video, ...
	Year           *int                        `gorm:"index" json:"year,omitempty"`
	ReleaseDate    *time.Time                  `json:"release_date,omitempty"`
	RuntimeMinutes *int                        `json:"runtime_minutes,omitempty"`
	Genres         datatypes.JSONSlice[string] `json:"genres"`
	Director       *string                     `gorm:"type:varchar(255)" json:"director,omitempty"`
	Plot           *string                     `gorm:"type:text" json:"plot,omitempty"`
	PosterURL      *string                     `json:"poster_url,omitempty"`
	// Explicit column names: the default naming strategy would split the
	// IMDb initialism into im_db_*, breaking every raw imdb_* query.
	IMDbRating     *float64                    `gorm:"column:imdb_rating" json:"imdb_rating,omitempty"`
	IMDbVotes      *int                        `gorm:"column:imdb_votes" json:"imdb_votes,omitempty"`
	BoxOffice      *string                     `json:"box_office,omitempty"`
	Country        *string                     `gorm:"type:varchar(255)" json:"country,omitempty"`
	Language       *string                     `gorm:"type:varchar(255)" json:"language,omitempty"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`

	UserRating     *UserRating     `gorm:"constraint:OnDelete:CASCADE" json:"user_rating,omitempty"`
	CastMembers    []CastMember    `gorm:"constraint:OnDelete:CASCADE" json:"cast_members,omitempty"`
	PosterAnalysis *PosterAnalysis `gorm:"constraint:OnDelete:CASCADE" json:"poster_analysis,omitempty"`
}

// UserRating is the viewer's personal score for a movie. One per movie:
// re-importing the same title updates the existing row in place.
type UserRating struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	MovieID   uint       `gorm:"uniqueIndex;not null" json:"movie_id"`
	Rating    int        `gorm:"not null;index" json:"rating"` // 1-10
	Review    *string    `gorm:"type:text" json:"review,omitempty"`
	RatedAt   *time.Time `gorm:"index" json:"rated_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// CastMember links a named participant to a movie.
type CastMember struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	MovieID   uint    `gorm:"not null;index" json:"movie_id"`
	Name      string  `gorm:"type:varchar(255);not null;index" json:"name"`
	Role      string  `gorm:"type:varchar(50);not null;index" json:"role"` // actor, director, writer
	Character *string `gorm:"type:varchar(255)" json:"character,omitempty"`
}

// Cast member roles.
const (
	RoleActor    = "actor"
	RoleDirector = "director"
	RoleWriter   = "writer"
)

// PosterAnalysis holds the visual features extracted from a movie poster.
// One per movie, replaced wholesale on re-analysis.
type PosterAnalysis struct {
	ID              uint                        `gorm:"primaryKey" json:"id"`
	MovieID         uint                        `gorm:"uniqueIndex;not null" json:"movie_id"`
	DominantColors  datatypes.JSONSlice[RGB]    `json:"dominant_colors"`
	ColorPalette    datatypes.JSONSlice[string] `json:"color_palette"` // hex strings
	BrightnessScore float64                     `json:"brightness_score"`
	ContrastScore   float64                     `json:"contrast_score"`
	TextRatio       float64                     `json:"text_ratio"`
	StyleTags       datatypes.JSONSlice[string] `json:"style_tags"`
	Narrative       *string                     `gorm:"type:text" json:"narrative,omitempty"` // LLM description, optional
	CreatedAt       time.Time                   `json:"created_at"`
}

// CachedAnalysis memoizes one computed analysis result per kind.
// Recomputation happens only on explicit regeneration, never by staleness.
type CachedAnalysis struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	AnalysisType string         `gorm:"type:varchar(50);uniqueIndex;not null" json:"analysis_type"`
	Payload      datatypes.JSON `gorm:"not null" json:"payload"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Analysis kinds stored in CachedAnalysis.
const (
	AnalysisGenres       = "genres"
	AnalysisYears        = "years"
	AnalysisRuntime      = "runtime"
	AnalysisCast         = "cast"
	AnalysisPosterStyles = "poster_styles"
	AnalysisInsights     = "overall_insights"
)

// ImportJob tracks a long-running CSV import or poster-scraping run.
// At most one non-terminal job exists system-wide.
type ImportJob struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Kind           string     `gorm:"type:varchar(50);not null" json:"kind"` // csv_import, poster_scrape
	Status         string     `gorm:"type:varchar(50);not null;index" json:"status"`
	TotalItems     int        `gorm:"default:0" json:"total_items"`
	ProcessedItems int        `gorm:"default:0" json:"processed_items"`
	CurrentItem    *string    `gorm:"type:varchar(500)" json:"current_item,omitempty"`
	ErrorMessage   *string    `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Job statuses. pending and running are the non-terminal states that
// block admission of a new job.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobStopped   = "stopped"

	JobKindCSVImport    = "csv_import"
	JobKindPosterScrape = "poster_scrape"
)

// ChatConversation groups an ordered transcript under a stable external id.
type ChatConversation struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID string    `gorm:"uniqueIndex;not null" json:"conversation_id"`
	Title          *string   `gorm:"type:varchar(500)" json:"title,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	Messages []ChatMessage `gorm:"foreignKey:ConversationID;references:ConversationID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

// ChatMessage is one transcript entry. Timestamp order defines the replay
// order fed to the LLM; tool-call round trips are never persisted here.
type ChatMessage struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID string    `gorm:"not null;index" json:"conversation_id"`
	Role           string    `gorm:"type:varchar(20);not null" json:"role"` // user, assistant
	Content        string    `gorm:"type:text;not null" json:"content"`
	Timestamp      time.Time `gorm:"not null;index" json:"timestamp"`
}
