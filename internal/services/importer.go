package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cinescope/internal/config"
	"cinescope/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Column names in an IMDb ratings export. Only a few are mandatory; the
// rest enrich the movie when present.
const (
	colConst       = "Const"
	colYourRating  = "Your Rating"
	colDateRated   = "Date Rated"
	colTitle       = "Title"
	colOrigTitle   = "Original Title"
	colTitleType   = "Title Type"
	colIMDbRating  = "IMDb Rating"
	colRuntime     = "Runtime (mins)"
	colYear        = "Year"
	colGenres      = "Genres"
	colNumVotes    = "Num Votes"
	colReleaseDate = "Release Date"
	colDirectors   = "Directors"
)

var requiredColumns = []string{colConst, colYourRating, colTitle, colYear}

// ImportService ingests IMDb ratings CSV exports.
type ImportService struct {
	db     *gorm.DB
	config *config.Config
	logger *zap.Logger
	jobs   *JobManager
}

// NewImportService creates an import service.
func NewImportService(db *gorm.DB, cfg *config.Config, logger *zap.Logger, jobs *JobManager) *ImportService {
	return &ImportService{db: db, config: cfg, logger: logger, jobs: jobs}
}

// StartCSVImport validates the file, admits a job, and runs the import in
// the background. Returns the admitted job immediately.
func (s *ImportService) StartCSVImport(path string) (*models.ImportJob, error) {
	if path == "" {
		path = s.config.Import.DefaultCSVPath
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("CSV file not found: %s", path)
	}

	job, ctx, err := s.jobs.Begin(models.JobKindCSVImport)
	if err != nil {
		return nil, err
	}

	go s.runImport(ctx, job.ID, path)
	return job, nil
}

// runImport is the worker body. It finalizes the job itself, including
// the stopped status when the context is cancelled mid-file.
func (s *ImportService) runImport(ctx context.Context, jobID uint, path string) {
	imported, skipped, err := s.importFile(ctx, jobID, path)
	switch {
	case err == context.Canceled:
		s.jobs.Finish(jobID, models.JobStopped, "")
	case err != nil:
		s.jobs.Finish(jobID, models.JobFailed, err.Error())
	default:
		msg := ""
		if skipped > 0 {
			msg = fmt.Sprintf("%d rows skipped due to parse errors", skipped)
		}
		s.jobs.Finish(jobID, models.JobCompleted, msg)
		s.logger.Info("CSV import completed",
			zap.Int("imported", imported), zap.Int("skipped", skipped))
	}
}

// importFile parses and upserts every row. Each row commits in its own
// transaction so a stop or crash never loses completed rows.
func (s *ImportService) importFile(ctx context.Context, jobID uint, path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open CSV: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // exports vary in trailing columns

	records, err := reader.ReadAll()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) < 1 {
		return 0, 0, fmt.Errorf("CSV file is empty")
	}

	columns := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		columns[strings.TrimSpace(name)] = i
	}
	for _, required := range requiredColumns {
		if _, ok := columns[required]; !ok {
			return 0, 0, fmt.Errorf("CSV is missing required column %q", required)
		}
	}

	rows := records[1:]
	var imported, skipped int
	for i, record := range rows {
		select {
		case <-ctx.Done():
			return imported, skipped, context.Canceled
		default:
		}

		title := field(record, columns, colTitle)
		s.jobs.Progress(jobID, i+1, len(rows), title)

		if err := s.importRow(record, columns); err != nil {
			skipped++
			s.logger.Warn("Skipping CSV row",
				zap.Int("row", i+2), zap.String("title", title), zap.Error(err))
			continue
		}
		imported++
	}

	return imported, skipped, nil
}

// importRow upserts one movie and its rating. Existing movies keep their
// stored metadata; only the rating is refreshed on re-import.
func (s *ImportService) importRow(record []string, columns map[string]int) error {
	imdbID := field(record, columns, colConst)
	if !strings.HasPrefix(imdbID, "tt") {
		return fmt.Errorf("invalid IMDb id %q", imdbID)
	}

	title := field(record, columns, colTitle)
	if title == "" {
		return fmt.Errorf("missing title")
	}

	rating, err := strconv.Atoi(field(record, columns, colYourRating))
	if err != nil || rating < 1 || rating > 10 {
		return fmt.Errorf("invalid rating %q", field(record, columns, colYourRating))
	}

	// A year that does not parse leaves the field unset rather than
	// rejecting the row.
	var year *int
	if y, err := strconv.Atoi(field(record, columns, colYear)); err == nil {
		year = &y
	}

	ratedAt := parseDate(field(record, columns, colDateRated))

	return s.db.Transaction(func(tx *gorm.DB) error {
		var movie models.Movie
		err := tx.Where("imdb_id = ?", imdbID).First(&movie).Error
		if err == gorm.ErrRecordNotFound {
			movie = s.buildMovie(record, columns, imdbID, title, year)
			if err := tx.Create(&movie).Error; err != nil {
				return err
			}
			for _, member := range s.buildCast(record, columns, movie.ID) {
				if err := tx.Create(&member).Error; err != nil {
					return err
				}
			}
		} else if err != nil {
			return err
		}

		var existing models.UserRating
		err = tx.Where("movie_id = ?", movie.ID).First(&existing).Error
		if err == gorm.ErrRecordNotFound {
			return tx.Create(&models.UserRating{
				MovieID: movie.ID,
				Rating:  rating,
				RatedAt: ratedAt,
			}).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&existing).Updates(map[string]interface{}{
			"rating":   rating,
			"rated_at": ratedAt,
		}).Error
	})
}

func (s *ImportService) buildMovie(record []string, columns map[string]int, imdbID, title string, year *int) models.Movie {
	movie := models.Movie{
		IMDbID: imdbID,
		Title:  title,
		Year:   year,
	}

	if v := field(record, columns, colOrigTitle); v != "" && v != title {
		movie.OriginalTitle = &v
	}
	if v := field(record, columns, colTitleType); v != "" {
		movie.TitleType = &v
	}
	if v := field(record, columns, colIMDbRating); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			movie.IMDbRating = &f
		}
	}
	if v := field(record, columns, colRuntime); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			movie.RuntimeMinutes = &n
		}
	}
	if v := field(record, columns, colNumVotes); v != "" {
		if n, err := strconv.Atoi(strings.ReplaceAll(v, ",", "")); err == nil {
			movie.IMDbVotes = &n
		}
	}
	if v := field(record, columns, colGenres); v != "" {
		movie.Genres = splitList(v)
	}
	if t := parseDate(field(record, columns, colReleaseDate)); t != nil {
		movie.ReleaseDate = t
	}
	if directors := splitList(field(record, columns, colDirectors)); len(directors) > 0 {
		movie.Director = &directors[0]
	}

	return movie
}

func (s *ImportService) buildCast(record []string, columns map[string]int, movieID uint) []models.CastMember {
	directors := splitList(field(record, columns, colDirectors))
	if len(directors) > s.config.Import.MaxDirectors {
		directors = directors[:s.config.Import.MaxDirectors]
	}

	members := make([]models.CastMember, 0, len(directors))
	for _, name := range directors {
		members = append(members, models.CastMember{
			MovieID: movieID,
			Name:    name,
			Role:    models.RoleDirector,
		})
	}
	return members
}

// Reset wipes the imported catalogue, every derived artifact, and the
// chat history. Refused while a job is active.
func (s *ImportService) Reset() error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&models.ImportJob{}).
			Where("status IN ?", []string{models.JobPending, models.JobRunning}).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return ErrJobActive
		}

		tables := []interface{}{
			&models.UserRating{},
			&models.CastMember{},
			&models.PosterAnalysis{},
			&models.CachedAnalysis{},
			&models.Movie{},
			&models.ImportJob{},
			&models.ChatMessage{},
			&models.ChatConversation{},
		}
		for _, table := range tables {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(table).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func field(record []string, columns map[string]int, name string) string {
	idx, ok := columns[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseDate(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil
	}
	return &t
}
