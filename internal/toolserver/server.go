// Package toolserver exposes the tool registry and read-only resources
// over newline-delimited JSON on stdin/stdout, so external agents can
// query the collection without going through HTTP.
package toolserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"cinescope/internal/database"
	"cinescope/internal/tools"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// JSON-RPC style error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// Request is one inbound NDJSON line.
type Request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Response is one outbound NDJSON line.
type Response struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Result interface{}     `json:"result,omitempty"`
	Error  *ResponseError  `json:"error,omitempty"`
}

// ResponseError carries a failed request's code and message.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server reads requests line by line and answers each on its own line.
type Server struct {
	db       *gorm.DB
	registry *tools.Registry
	logger   *zap.Logger
	in       io.Reader
	out      io.Writer
	outMu    sync.Mutex
}

// NewServer creates a tool server bound to the given streams.
func NewServer(db *gorm.DB, registry *tools.Registry, logger *zap.Logger, in io.Reader, out io.Writer) *Server {
	return &Server{db: db, registry: registry, logger: logger, in: in, out: out}
}

// Run processes requests until EOF or context cancellation.
func (s *Server) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(Response{Error: &ResponseError{Code: codeParseError, Message: "invalid JSON"}})
			continue
		}
		s.write(s.handle(req))
	}
	return scanner.Err()
}

func (s *Server) handle(req Request) Response {
	resp := Response{ID: req.ID}

	var result interface{}
	var err *ResponseError
	switch req.Method {
	case "tools/list":
		result = s.listTools()
	case "tools/call":
		result, err = s.callTool(req.Params)
	case "resources/list":
		result = s.listResources()
	case "resources/read":
		result, err = s.readResource(req.Params)
	default:
		err = &ResponseError{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown method: %s", req.Method)}
	}

	if err != nil {
		resp.Error = err
		return resp
	}
	resp.Result = result
	return resp
}

type toolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

func (s *Server) listTools() interface{} {
	infos := make([]toolInfo, 0)
	for _, name := range s.registry.Names() {
		def, _ := s.registry.Lookup(name)
		infos = append(infos, toolInfo{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.Schema,
		})
	}
	return map[string]interface{}{"tools": infos}
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (s *Server) callTool(params json.RawMessage) (interface{}, *ResponseError) {
	var call callParams
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, &ResponseError{Code: codeInvalidParams, Message: "invalid params"}
	}
	if _, ok := s.registry.Lookup(call.Name); !ok {
		return nil, &ResponseError{Code: codeInvalidParams, Message: fmt.Sprintf("unknown tool: %s", call.Name)}
	}

	payload := s.registry.Call(call.Name, call.Arguments)
	s.logger.Debug("Tool call served", zap.String("tool", call.Name))

	return map[string]interface{}{
		"content": []textContent{{Type: "text", Text: envelope(call.Name, payload)}},
	}, nil
}

// envelope wraps a tool payload in a short human-readable heading.
func envelope(tool string, payload json.RawMessage) string {
	pretty := prettify(payload)
	switch tool {
	case "filter_movies":
		return fmt.Sprintf("Found %s movies matching your filters:\n\n%s", countField(payload, "total_found"), pretty)
	case "search_movies":
		return fmt.Sprintf("Found %s movies matching your search:\n\n%s", countField(payload, "total_found"), pretty)
	case "get_movie_details":
		return fmt.Sprintf("Movie details for '%s':\n\n%s", stringField(payload, "title"), pretty)
	case "get_movie_stats":
		return fmt.Sprintf("Movie collection statistics:\n\n%s", pretty)
	case "get_cast_member_movies":
		return fmt.Sprintf("Movies featuring '%s':\n\n%s", stringField(payload, "query"), pretty)
	case "find_similar_movies":
		return fmt.Sprintf("Found %s movies similar to '%s':\n\n%s", countField(payload, "total_found"), stringField(payload, "reference"), pretty)
	default:
		return pretty
	}
}

func stringField(payload json.RawMessage, field string) string {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(payload, &m); err == nil {
		if v, ok := m[field]; ok {
			var s string
			if json.Unmarshal(v, &s) == nil {
				return s
			}
		}
	}
	return ""
}

func countField(payload json.RawMessage, field string) string {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(payload, &m); err == nil {
		if v, ok := m[field]; ok {
			return string(v)
		}
	}
	return "0"
}

func prettify(payload json.RawMessage) string {
	var v interface{}
	if err := json.Unmarshal(payload, &v); err != nil {
		return string(payload)
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(payload)
	}
	return string(pretty)
}

type resourceInfo struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mime_type"`
}

var resources = []resourceInfo{
	{URI: "movies://all", Name: "All rated movies", Description: "Every movie in the collection with the user's rating", MimeType: "application/json"},
	{URI: "movies://top-rated", Name: "Top rated movies", Description: "The user's highest-rated movies", MimeType: "application/json"},
	{URI: "movies://recent", Name: "Recently rated movies", Description: "The most recently rated movies", MimeType: "application/json"},
	{URI: "cast://all", Name: "All cast members", Description: "Every cast member across rated movies with appearance counts", MimeType: "application/json"},
}

func (s *Server) listResources() interface{} {
	return map[string]interface{}{"resources": resources}
}

type readParams struct {
	URI string `json:"uri"`
}

func (s *Server) readResource(params json.RawMessage) (interface{}, *ResponseError) {
	var read readParams
	if err := json.Unmarshal(params, &read); err != nil {
		return nil, &ResponseError{Code: codeInvalidParams, Message: "invalid params"}
	}

	payload, err := s.resourcePayload(read.URI)
	if err != nil {
		return nil, err
	}

	text, marshalErr := json.MarshalIndent(payload, "", "  ")
	if marshalErr != nil {
		return nil, &ResponseError{Code: codeInternalError, Message: marshalErr.Error()}
	}

	return map[string]interface{}{
		"contents": []map[string]string{{
			"uri":       read.URI,
			"mime_type": "application/json",
			"text":      string(text),
		}},
	}, nil
}

func (s *Server) resourcePayload(uri string) (interface{}, *ResponseError) {
	switch uri {
	case "movies://all":
		rows, err := database.AllRatedMovies(s.db)
		if err != nil {
			return nil, &ResponseError{Code: codeInternalError, Message: err.Error()}
		}
		return summarizeRows(rows), nil

	case "movies://top-rated":
		rows, _, err := database.QueryRatedMovies(s.db, database.RatedMovieFilter{
			SortBy: "rating", Order: "desc", Limit: 50,
		})
		if err != nil {
			return nil, &ResponseError{Code: codeInternalError, Message: err.Error()}
		}
		return summarizeRows(rows), nil

	case "movies://recent":
		rows, _, err := database.QueryRatedMovies(s.db, database.RatedMovieFilter{
			SortBy: "rated_at", Order: "desc", Limit: 50,
		})
		if err != nil {
			return nil, &ResponseError{Code: codeInternalError, Message: err.Error()}
		}
		return summarizeRows(rows), nil

	case "cast://all":
		return s.castPayload()

	default:
		return nil, &ResponseError{Code: codeInvalidParams, Message: fmt.Sprintf("unknown resource: %s", uri)}
	}
}

type movieEntry struct {
	IMDbID string   `json:"imdb_id"`
	Title  string   `json:"title"`
	Year   *int     `json:"year,omitempty"`
	Rating int      `json:"rating"`
	Genres []string `json:"genres"`
}

func summarizeRows(rows []database.RatedMovie) []movieEntry {
	entries := make([]movieEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, movieEntry{
			IMDbID: row.Movie.IMDbID,
			Title:  row.Movie.Title,
			Year:   row.Movie.Year,
			Rating: row.Rating,
			Genres: row.Movie.Genres,
		})
	}
	return entries
}

func (s *Server) castPayload() (interface{}, *ResponseError) {
	type castRow struct {
		Name  string `json:"name"`
		Role  string `json:"role"`
		Count int    `json:"count"`
	}
	var rows []castRow
	err := s.db.Table("cast_members").
		Select("name, role, COUNT(*) as count").
		Group("name, role").
		Order("count DESC, name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, &ResponseError{Code: codeInternalError, Message: err.Error()}
	}
	return rows, nil
}

func (s *Server) write(resp Response) {
	s.outMu.Lock()
	defer s.outMu.Unlock()

	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
		return
	}
	data = append(data, '\n')
	if _, err := s.out.Write(data); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}
