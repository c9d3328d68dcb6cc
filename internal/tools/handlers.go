package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"cinescope/internal/database"
	"cinescope/internal/models"

	"gorm.io/gorm"
)

type searchArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func searchMovies(db *gorm.DB, raw json.RawMessage) (interface{}, error) {
	args := searchArgs{Limit: 10}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.Query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}

	rows, total, err := database.QueryRatedMovies(db, database.RatedMovieFilter{
		Search: args.Query,
		Limit:  args.Limit,
	})
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"query":       args.Query,
		"total_found": total,
		"movies":      summarizeAll(rows),
	}, nil
}

type detailsArgs struct {
	Identifier string `json:"identifier"`
}

// movieByIdentifier scopes a query to one movie. Identifiers starting with
// "tt" are treated as IMDb ids, anything else as a title substring.
func movieByIdentifier(db *gorm.DB, identifier string) *gorm.DB {
	if strings.HasPrefix(identifier, "tt") {
		return db.Where("imdb_id = ?", identifier)
	}
	return db.Where("title LIKE ?", "%"+identifier+"%")
}

type castEntry struct {
	Name      string  `json:"name"`
	Role      string  `json:"role"`
	Character *string `json:"character,omitempty"`
}

func getMovieDetails(db *gorm.DB, raw json.RawMessage) (interface{}, error) {
	var args detailsArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}

	var movie models.Movie
	scope := db.Preload("UserRating").Preload("CastMembers").Preload("PosterAnalysis")
	err := movieByIdentifier(scope, args.Identifier).First(&movie).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("movie not found: %s", args.Identifier)
	}
	if err != nil {
		return nil, err
	}

	cast := make([]castEntry, 0, len(movie.CastMembers))
	for _, member := range movie.CastMembers {
		cast = append(cast, castEntry{Name: member.Name, Role: member.Role, Character: member.Character})
	}

	details := map[string]interface{}{
		"imdb_id":         movie.IMDbID,
		"title":           movie.Title,
		"year":            movie.Year,
		"genres":          []string(movie.Genres),
		"director":        movie.Director,
		"plot":            movie.Plot,
		"runtime_minutes": movie.RuntimeMinutes,
		"imdb_rating":     movie.IMDbRating,
		"imdb_votes":      movie.IMDbVotes,
		"country":         movie.Country,
		"language":        movie.Language,
		"cast":            cast,
	}
	if movie.UserRating != nil {
		details["your_rating"] = movie.UserRating.Rating
		if movie.UserRating.RatedAt != nil {
			details["rated_at"] = movie.UserRating.RatedAt.Format("2006-01-02")
		}
	}
	return details, nil
}

type castMoviesArgs struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

func getCastMemberMovies(db *gorm.DB, raw json.RawMessage) (interface{}, error) {
	var args castMoviesArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.Name) == "" {
		return nil, fmt.Errorf("name must not be empty")
	}

	q := db.Model(&models.CastMember{}).Where("name LIKE ?", "%"+args.Name+"%")
	if args.Role != "" {
		q = q.Where("role = ?", args.Role)
	}
	var members []models.CastMember
	if err := q.Find(&members).Error; err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("no cast members match: %s", args.Name)
	}

	// A partial name like "Will" can match several distinct people, so
	// results are grouped per matching name. A person credited as both
	// actor and director on one movie is reported as its director.
	roleByName := make(map[string]map[uint]string)
	for _, m := range members {
		roles, ok := roleByName[m.Name]
		if !ok {
			roles = make(map[uint]string)
			roleByName[m.Name] = roles
		}
		if existing, ok := roles[m.MovieID]; !ok || existing != models.RoleDirector {
			roles[m.MovieID] = m.Role
		}
	}

	rows, err := database.AllRatedMovies(db)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(roleByName))
	for name := range roleByName {
		names = append(names, name)
	}
	sort.Strings(names)

	type castMovie struct {
		MovieSummary
		Role string `json:"role"`
	}
	type castGroup struct {
		Name   string      `json:"name"`
		Movies []castMovie `json:"movies"`
	}
	total := 0
	groups := make([]castGroup, 0, len(names))
	for _, name := range names {
		group := castGroup{Name: name}
		for _, row := range rows {
			if role, ok := roleByName[name][row.Movie.ID]; ok {
				group.Movies = append(group.Movies, castMovie{MovieSummary: summarize(row), Role: role})
			}
		}
		total += len(group.Movies)
		groups = append(groups, group)
	}

	return map[string]interface{}{
		"query":       args.Name,
		"total_found": total,
		"people":      groups,
	}, nil
}

type filterArgs struct {
	Genres        []string `json:"genres"`
	YearMin       *int     `json:"year_min"`
	YearMax       *int     `json:"year_max"`
	RatingMin     *int     `json:"rating_min"`
	RatingMax     *int     `json:"rating_max"`
	IMDbRatingMin *float64 `json:"imdb_rating_min"`
	IMDbRatingMax *float64 `json:"imdb_rating_max"`
	RuntimeMin    *int     `json:"runtime_min"`
	RuntimeMax    *int     `json:"runtime_max"`
	SortBy        string   `json:"sort_by"`
	Order         string   `json:"order"`
	Limit         int      `json:"limit"`
}

func filterMovies(db *gorm.DB, raw json.RawMessage) (interface{}, error) {
	args := filterArgs{SortBy: "rating", Order: "desc", Limit: 20}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}

	rows, total, err := database.QueryRatedMovies(db, database.RatedMovieFilter{
		Genres:        args.Genres,
		YearMin:       args.YearMin,
		YearMax:       args.YearMax,
		RatingMin:     args.RatingMin,
		RatingMax:     args.RatingMax,
		IMDbRatingMin: args.IMDbRatingMin,
		IMDbRatingMax: args.IMDbRatingMax,
		RuntimeMin:    args.RuntimeMin,
		RuntimeMax:    args.RuntimeMax,
		SortBy:        args.SortBy,
		Order:         args.Order,
		Limit:         args.Limit,
	})
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"total_found": total,
		"movies":      summarizeAll(rows),
	}, nil
}

func getMovieStats(db *gorm.DB, _ json.RawMessage) (interface{}, error) {
	rows, err := database.AllRatedMovies(db)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return map[string]interface{}{"total_movies": 0}, nil
	}

	ratingDist := make(map[string]int)
	genreCounts := make(map[string]int)
	years := make(map[int]struct{})
	var ratingSum, runtimeSum, runtimeCount int
	yearMin, yearMax := 0, 0
	for _, row := range rows {
		ratingSum += row.Rating
		ratingDist[fmt.Sprintf("%d", row.Rating)]++
		for _, g := range row.Movie.Genres {
			genreCounts[g]++
		}
		if row.Movie.RuntimeMinutes != nil {
			runtimeSum += *row.Movie.RuntimeMinutes
			runtimeCount++
		}
		if row.Movie.Year != nil {
			y := *row.Movie.Year
			years[y] = struct{}{}
			if yearMin == 0 || y < yearMin {
				yearMin = y
			}
			if y > yearMax {
				yearMax = y
			}
		}
	}

	type genreCount struct {
		Genre string `json:"genre"`
		Count int    `json:"count"`
	}
	topGenres := make([]genreCount, 0, len(genreCounts))
	for g, n := range genreCounts {
		topGenres = append(topGenres, genreCount{Genre: g, Count: n})
	}
	sort.Slice(topGenres, func(i, j int) bool {
		if topGenres[i].Count != topGenres[j].Count {
			return topGenres[i].Count > topGenres[j].Count
		}
		return topGenres[i].Genre < topGenres[j].Genre
	})
	if len(topGenres) > 10 {
		topGenres = topGenres[:10]
	}

	var castNames int64
	if err := db.Model(&models.CastMember{}).Distinct("name").Count(&castNames).Error; err != nil {
		return nil, err
	}

	stats := map[string]interface{}{
		"total_movies":        len(rows),
		"average_rating":      round2(float64(ratingSum) / float64(len(rows))),
		"rating_distribution": ratingDist,
		"top_genres":          topGenres,
		"total_runtime_hours": round1(float64(runtimeSum) / 60.0),
		"unique_years":        len(years),
		"unique_cast_members": castNames,
	}
	if yearMin != 0 {
		stats["year_range"] = map[string]int{"min": yearMin, "max": yearMax}
	}
	return stats, nil
}

type similarArgs struct {
	Identifier     string `json:"identifier"`
	SimilarityType string `json:"similarity_type"`
	Limit          int    `json:"limit"`
}

// findSimilarMovies unions three candidate sets against the reference movie:
// shared genre, same director, and shared cast member. Each set is capped at
// the limit before the union, duplicates keep their first match, and the
// merged list is truncated to the limit.
func findSimilarMovies(db *gorm.DB, raw json.RawMessage) (interface{}, error) {
	args := similarArgs{SimilarityType: "all", Limit: 5}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}

	var reference models.Movie
	err := movieByIdentifier(db.Preload("CastMembers"), args.Identifier).First(&reference).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("movie not found: %s", args.Identifier)
	}
	if err != nil {
		return nil, err
	}

	refGenres := make(map[string]struct{}, len(reference.Genres))
	for _, g := range reference.Genres {
		refGenres[g] = struct{}{}
	}

	sharedCast := make(map[uint]bool)
	if len(reference.CastMembers) > 0 {
		names := make([]string, 0, len(reference.CastMembers))
		for _, member := range reference.CastMembers {
			names = append(names, member.Name)
		}
		var ids []uint
		err = db.Model(&models.CastMember{}).Where("name IN ?", names).
			Distinct().Pluck("movie_id", &ids).Error
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			sharedCast[id] = true
		}
	}

	// Rating-descending order from the default query determines first-seen
	// position within each candidate set.
	rows, err := database.AllRatedMovies(db)
	if err != nil {
		return nil, err
	}

	matchers := []struct {
		kind  string
		match func(models.Movie) bool
	}{
		{"genre", func(m models.Movie) bool {
			for _, g := range m.Genres {
				if _, ok := refGenres[g]; ok {
					return true
				}
			}
			return false
		}},
		{"director", func(m models.Movie) bool {
			return reference.Director != nil && m.Director != nil && *m.Director == *reference.Director
		}},
		{"cast", func(m models.Movie) bool {
			return sharedCast[m.ID]
		}},
	}

	type similarMovie struct {
		MovieSummary
		MatchedBy string `json:"matched_by"`
	}

	seen := map[uint]struct{}{reference.ID: {}}
	similar := make([]similarMovie, 0, args.Limit)
	for _, m := range matchers {
		if args.SimilarityType != "all" && args.SimilarityType != m.kind {
			continue
		}
		matched := 0
		for _, row := range rows {
			if row.Movie.ID == reference.ID || !m.match(row.Movie) {
				continue
			}
			matched++
			if _, dup := seen[row.Movie.ID]; !dup {
				seen[row.Movie.ID] = struct{}{}
				similar = append(similar, similarMovie{MovieSummary: summarize(row), MatchedBy: m.kind})
			}
			if matched >= args.Limit {
				break
			}
		}
	}
	if len(similar) > args.Limit {
		similar = similar[:args.Limit]
	}

	return map[string]interface{}{
		"reference":       reference.Title,
		"similarity_type": args.SimilarityType,
		"total_found":     len(similar),
		"movies":          similar,
	}, nil
}

func decodeArgs(raw json.RawMessage, dest interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
