// Package tools exposes the rated-movie corpus as a registry of callable
// operations. The same registry backs both the chat service's LLM tool
// calls and the standalone tool server.
package tools

import (
	"encoding/json"
	"fmt"
	"sort"

	"cinescope/internal/database"
	"cinescope/internal/llm"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler executes one tool call against the database.
type Handler func(db *gorm.DB, args json.RawMessage) (interface{}, error)

// Definition is one registered tool.
type Definition struct {
	Name        string
	Description string
	Schema      json.RawMessage
	Handler     Handler
}

// Registry holds the tool set keyed by name.
type Registry struct {
	db     *gorm.DB
	logger *zap.Logger
	defs   map[string]Definition
}

// NewRegistry builds the full tool set.
func NewRegistry(db *gorm.DB, logger *zap.Logger) *Registry {
	r := &Registry{
		db:     db,
		logger: logger,
		defs:   make(map[string]Definition),
	}

	r.register(Definition{
		Name:        "search_movies",
		Description: "Search rated movies by title, director, or cast member name.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Search term matched against title, director, and cast names"},
				"limit": {"type": "integer", "description": "Maximum results to return", "default": 10}
			},
			"required": ["query"]
		}`),
		Handler: searchMovies,
	})

	r.register(Definition{
		Name:        "get_movie_details",
		Description: "Get full details for one movie, including cast and the user's rating.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"identifier": {"type": "string", "description": "IMDb id (e.g. tt0111161) or a title substring"}
			},
			"required": ["identifier"]
		}`),
		Handler: getMovieDetails,
	})

	r.register(Definition{
		Name:        "get_cast_member_movies",
		Description: "List rated movies featuring a given actor or director, grouped per matching person.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {"type": "string", "description": "Cast member name, partial matches allowed"},
				"role": {"type": "string", "enum": ["actor", "director"], "description": "Restrict to one role"}
			},
			"required": ["name"]
		}`),
		Handler: getCastMemberMovies,
	})

	r.register(Definition{
		Name:        "filter_movies",
		Description: "Filter rated movies by genre, year, rating, IMDb rating, and runtime, with sorting.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"genres": {"type": "array", "items": {"type": "string"}, "description": "Match any of these genres"},
				"year_min": {"type": "integer"},
				"year_max": {"type": "integer"},
				"rating_min": {"type": "integer", "description": "Minimum personal rating (1-10)"},
				"rating_max": {"type": "integer"},
				"imdb_rating_min": {"type": "number"},
				"imdb_rating_max": {"type": "number"},
				"runtime_min": {"type": "integer", "description": "Minimum runtime in minutes"},
				"runtime_max": {"type": "integer"},
				"sort_by": {"type": "string", "enum": ["rating", "rated_at", "title", "year", "imdb_rating", "runtime", "runtime_minutes"], "default": "rating"},
				"order": {"type": "string", "enum": ["asc", "desc"], "default": "desc"},
				"limit": {"type": "integer", "default": 20}
			}
		}`),
		Handler: filterMovies,
	})

	r.register(Definition{
		Name:        "get_movie_stats",
		Description: "Get aggregate statistics over the whole rated collection.",
		Schema:      json.RawMessage(`{"type": "object", "properties": {}}`),
		Handler:     getMovieStats,
	})

	r.register(Definition{
		Name:        "find_similar_movies",
		Description: "Find rated movies similar to a given one by shared genre, director, or cast.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"identifier": {"type": "string", "description": "IMDb id or title substring of the reference movie"},
				"similarity_type": {"type": "string", "enum": ["all", "genre", "director", "cast"], "default": "all"},
				"limit": {"type": "integer", "default": 5}
			},
			"required": ["identifier"]
		}`),
		Handler: findSimilarMovies,
	})

	return r
}

func (r *Registry) register(def Definition) {
	r.defs[def.Name] = def
}

// Names returns the registered tool names, alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the definition for a name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// LLMTools returns the tool set as LLM tool definitions, in stable order.
func (r *Registry) LLMTools() []llm.Tool {
	tools := make([]llm.Tool, 0, len(r.defs))
	for _, name := range r.Names() {
		def := r.defs[name]
		tools = append(tools, llm.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.Schema,
		})
	}
	return tools
}

// Call executes a tool and marshals its result. Failures come back as an
// {"error": ...} payload so callers can hand them to the LLM instead of
// aborting the conversation.
func (r *Registry) Call(name string, args json.RawMessage) json.RawMessage {
	def, ok := r.defs[name]
	if !ok {
		return errorPayload(fmt.Sprintf("unknown tool: %s", name))
	}

	result, err := def.Handler(r.db, args)
	if err != nil {
		r.logger.Warn("Tool call failed", zap.String("tool", name), zap.Error(err))
		return errorPayload(err.Error())
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return errorPayload(fmt.Sprintf("failed to encode result: %v", err))
	}
	return payload
}

func errorPayload(msg string) json.RawMessage {
	payload, _ := json.Marshal(map[string]string{"error": msg})
	return payload
}

// MovieSummary is the compact movie shape returned by list-style tools.
type MovieSummary struct {
	IMDbID         string   `json:"imdb_id"`
	Title          string   `json:"title"`
	Year           *int     `json:"year,omitempty"`
	Genres         []string `json:"genres"`
	Director       *string  `json:"director,omitempty"`
	YourRating     int      `json:"your_rating"`
	IMDbRating     *float64 `json:"imdb_rating,omitempty"`
	RuntimeMinutes *int     `json:"runtime_minutes,omitempty"`
}

func summarize(row database.RatedMovie) MovieSummary {
	return MovieSummary{
		IMDbID:         row.Movie.IMDbID,
		Title:          row.Movie.Title,
		Year:           row.Movie.Year,
		Genres:         row.Movie.Genres,
		Director:       row.Movie.Director,
		YourRating:     row.Rating,
		IMDbRating:     row.Movie.IMDbRating,
		RuntimeMinutes: row.Movie.RuntimeMinutes,
	}
}

func summarizeAll(rows []database.RatedMovie) []MovieSummary {
	out := make([]MovieSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, summarize(row))
	}
	return out
}
