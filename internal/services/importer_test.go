package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cinescope/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const csvHeader = "Const,Your Rating,Date Rated,Title,Original Title,URL,Title Type,IMDb Rating,Runtime (mins),Year,Genres,Num Votes,Release Date,Directors\n"

func writeCSV(t *testing.T, rows string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ratings.csv")
	require.NoError(t, os.WriteFile(path, []byte(csvHeader+rows), 0644))
	return path
}

func newImporter(t *testing.T) (*ImportService, *gorm.DB, *JobManager) {
	t.Helper()
	db := newTestDB(t)
	jobs := NewJobManager(db, nopLogger())
	return NewImportService(db, testConfig(), nopLogger(), jobs), db, jobs
}

func startedJob(t *testing.T, db *gorm.DB, kind string) *models.ImportJob {
	t.Helper()
	job := &models.ImportJob{Kind: kind, Status: models.JobRunning}
	require.NoError(t, db.Create(job).Error)
	return job
}

func TestImportFile(t *testing.T) {
	svc, db, _ := newImporter(t)
	path := writeCSV(t,
		`tt0111161,10,2024-01-15,The Shawshank Redemption,The Shawshank Redemption,url,Movie,9.3,142,1994,"Drama",2900000,1994-09-23,Frank Darabont`+"\n"+
			`tt0468569,9,2024-02-01,The Dark Knight,The Dark Knight,url,Movie,9.0,152,2008,"Action, Crime, Drama","2,800,000",2008-07-18,Christopher Nolan`+"\n")

	job := startedJob(t, db, models.JobKindCSVImport)
	imported, skipped, err := svc.importFile(context.Background(), job.ID, path)
	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	assert.Zero(t, skipped)

	var movie models.Movie
	require.NoError(t, db.Preload("UserRating").Preload("CastMembers").
		Where("imdb_id = ?", "tt0111161").First(&movie).Error)
	assert.Equal(t, "The Shawshank Redemption", movie.Title)
	assert.Equal(t, 1994, *movie.Year)
	assert.Equal(t, 142, *movie.RuntimeMinutes)
	assert.Equal(t, 9.3, *movie.IMDbRating)
	assert.Equal(t, []string{"Drama"}, []string(movie.Genres))
	assert.Equal(t, "Frank Darabont", *movie.Director)
	require.NotNil(t, movie.UserRating)
	assert.Equal(t, 10, movie.UserRating.Rating)
	assert.Equal(t, "2024-01-15", movie.UserRating.RatedAt.Format("2006-01-02"))
	require.Len(t, movie.CastMembers, 1)
	assert.Equal(t, models.RoleDirector, movie.CastMembers[0].Role)

	// comma-grouped vote counts parse
	var knight models.Movie
	require.NoError(t, db.Where("imdb_id = ?", "tt0468569").First(&knight).Error)
	assert.Equal(t, 2800000, *knight.IMDbVotes)
	assert.Equal(t, []string{"Action", "Crime", "Drama"}, []string(knight.Genres))
}

func TestImportFileIdempotentReRating(t *testing.T) {
	svc, db, _ := newImporter(t)
	job := startedJob(t, db, models.JobKindCSVImport)

	first := writeCSV(t, `tt0111161,7,2024-01-15,The Shawshank Redemption,,url,Movie,9.3,142,1994,Drama,100,1994-09-23,Frank Darabont`+"\n")
	_, _, err := svc.importFile(context.Background(), job.ID, first)
	require.NoError(t, err)

	second := writeCSV(t, `tt0111161,10,2024-06-01,The Shawshank Redemption,,url,Movie,9.3,142,1994,Drama,100,1994-09-23,Frank Darabont`+"\n")
	_, _, err = svc.importFile(context.Background(), job.ID, second)
	require.NoError(t, err)

	var movies []models.Movie
	require.NoError(t, db.Find(&movies).Error)
	require.Len(t, movies, 1)

	var ratings []models.UserRating
	require.NoError(t, db.Find(&ratings).Error)
	require.Len(t, ratings, 1)
	assert.Equal(t, 10, ratings[0].Rating)
	assert.Equal(t, "2024-06-01", ratings[0].RatedAt.Format("2006-01-02"))
}

func TestImportFileSkipsBadRows(t *testing.T) {
	svc, db, _ := newImporter(t)
	job := startedJob(t, db, models.JobKindCSVImport)

	path := writeCSV(t,
		`tt0111161,10,2024-01-15,Good Movie,,url,Movie,9.3,142,1994,Drama,100,,Frank Darabont`+"\n"+
			`nm0000001,8,2024-01-15,Not A Movie Id,,url,Movie,7.0,100,2000,Drama,100,,Someone`+"\n"+
			`tt0000002,eleven,2024-01-15,Bad Rating,,url,Movie,7.0,100,2000,Drama,100,,Someone`+"\n"+
			`tt0000003,8,2024-01-15,Bad Year,,url,Movie,7.0,100,????,Drama,100,,Someone`+"\n")

	imported, skipped, err := svc.importFile(context.Background(), job.ID, path)
	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	assert.Equal(t, 2, skipped)

	var count int64
	require.NoError(t, db.Model(&models.Movie{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	// the unparsable year imports with the field left unset
	var badYear models.Movie
	require.NoError(t, db.Where("imdb_id = ?", "tt0000003").First(&badYear).Error)
	assert.Nil(t, badYear.Year)
}

func TestImportFileMissingColumn(t *testing.T) {
	svc, db, _ := newImporter(t)
	job := startedJob(t, db, models.JobKindCSVImport)

	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("Const,Title,Year\ntt1,Movie,2000\n"), 0644))

	_, _, err := svc.importFile(context.Background(), job.ID, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Your Rating")
}

func TestImportFileStopsOnCancel(t *testing.T) {
	svc, db, _ := newImporter(t)
	job := startedJob(t, db, models.JobKindCSVImport)
	path := writeCSV(t, `tt0111161,10,2024-01-15,Movie,,url,Movie,9.3,142,1994,Drama,100,,Someone`+"\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	imported, _, err := svc.importFile(ctx, job.ID, path)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, imported)
}

func TestStartCSVImportRejectsMissingFile(t *testing.T) {
	svc, _, _ := newImporter(t)
	_, err := svc.StartCSVImport(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestJobAdmissionGate(t *testing.T) {
	db := newTestDB(t)
	jobs := NewJobManager(db, nopLogger())

	first, _, err := jobs.Begin(models.JobKindCSVImport)
	require.NoError(t, err)

	_, _, err = jobs.Begin(models.JobKindPosterScrape)
	assert.ErrorIs(t, err, ErrJobActive)

	jobs.Finish(first.ID, models.JobCompleted, "")

	_, _, err = jobs.Begin(models.JobKindPosterScrape)
	assert.NoError(t, err)
}

func TestJobStop(t *testing.T) {
	db := newTestDB(t)
	jobs := NewJobManager(db, nopLogger())

	assert.ErrorIs(t, jobs.Stop(), ErrNoActiveJob)

	job, ctx, err := jobs.Begin(models.JobKindCSVImport)
	require.NoError(t, err)
	require.NoError(t, jobs.Stop())

	select {
	case <-ctx.Done():
	default:
		t.Fatal("expected context to be cancelled")
	}

	jobs.Finish(job.ID, models.JobStopped, "")
	latest, err := jobs.Latest()
	require.NoError(t, err)
	assert.Equal(t, models.JobStopped, latest.Status)
}

func TestReset(t *testing.T) {
	svc, db, _ := newImporter(t)
	movie := seedRated(t, db, "tt0000001", "Alpha", 1994, 9, []string{"Drama"}, nil)
	require.NoError(t, db.Create(&models.CastMember{MovieID: movie.ID, Name: "A", Role: models.RoleActor}).Error)
	require.NoError(t, saveCache(db, models.AnalysisGenres, map[string]string{"x": "y"}))
	require.NoError(t, db.Create(&models.ChatConversation{ConversationID: "c1"}).Error)

	require.NoError(t, svc.Reset())

	for _, model := range []interface{}{
		&models.Movie{}, &models.UserRating{}, &models.CastMember{}, &models.CachedAnalysis{},
		&models.ChatConversation{},
	} {
		var count int64
		require.NoError(t, db.Model(model).Count(&count).Error)
		assert.Zero(t, count, "%T should be empty", model)
	}
}

func TestResetRefusedWhileJobActive(t *testing.T) {
	svc, db, _ := newImporter(t)
	startedJob(t, db, models.JobKindCSVImport)
	assert.ErrorIs(t, svc.Reset(), ErrJobActive)
}
