package services

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"net/http"
	"sort"

	"cinescope/internal/config"
	"cinescope/internal/database"
	"cinescope/internal/models"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"gorm.io/gorm"
)

// PosterService extracts visual features from movie posters and
// aggregates them into the poster-style preference analysis.
type PosterService struct {
	db         *gorm.DB
	config     *config.Config
	logger     *zap.Logger
	httpClient *http.Client
}

// NewPosterService creates a poster service.
func NewPosterService(db *gorm.DB, cfg *config.Config, logger *zap.Logger) *PosterService {
	return &PosterService{
		db:     db,
		config: cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: cfg.Poster.DownloadTimeout,
		},
	}
}

// PosterFeatures holds the raw extracted features before persistence.
type PosterFeatures struct {
	DominantColors []models.RGB
	Brightness     float64
	Contrast       float64
	TextRatio      float64
	StyleTags      []string
}

// AnalyzeImage extracts features from a decoded poster image. The image
// is first resized to a fixed sample size so feature scales stay
// comparable across posters.
func (s *PosterService) AnalyzeImage(img image.Image) PosterFeatures {
	sample := resize(img, s.config.Poster.SampleSize)
	pixels := collectPixels(sample)

	colors := dominantColors(pixels, s.config.Poster.DominantColors)
	brightness := meanBrightness(pixels)
	contrast := contrastScore(pixels)

	return PosterFeatures{
		DominantColors: colors,
		Brightness:     brightness,
		Contrast:       contrast,
		TextRatio:      textRatio(sample),
		StyleTags:      styleTags(brightness, contrast, colors),
	}
}

// AnalyzeURL downloads, decodes, and analyzes a poster.
func (s *PosterService) AnalyzeURL(ctx context.Context, url string) (*PosterFeatures, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build poster request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download poster: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poster download failed: status %d", resp.StatusCode)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode poster image: %w", err)
	}

	features := s.AnalyzeImage(img)
	return &features, nil
}

// AnalyzeMovie analyzes a movie's poster and upserts the stored analysis.
func (s *PosterService) AnalyzeMovie(ctx context.Context, movie *models.Movie) error {
	if movie.PosterURL == nil || *movie.PosterURL == "" {
		return fmt.Errorf("movie %s has no poster URL", movie.IMDbID)
	}

	features, err := s.AnalyzeURL(ctx, *movie.PosterURL)
	if err != nil {
		return err
	}

	palette := make([]string, 0, len(features.DominantColors))
	for _, c := range features.DominantColors {
		palette = append(palette, fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
	}

	analysis := models.PosterAnalysis{
		MovieID:         movie.ID,
		DominantColors:  features.DominantColors,
		ColorPalette:    palette,
		BrightnessScore: features.Brightness,
		ContrastScore:   features.Contrast,
		TextRatio:       features.TextRatio,
		StyleTags:       features.StyleTags,
	}

	var existing models.PosterAnalysis
	err = s.db.Where("movie_id = ?", movie.ID).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return s.db.Create(&analysis).Error
	}
	if err != nil {
		return err
	}
	analysis.ID = existing.ID
	analysis.CreatedAt = existing.CreatedAt
	return s.db.Save(&analysis).Error
}

// Styles returns the corpus-wide poster style preference analysis.
func (s *PosterService) Styles(force bool) (*models.PosterStyleAnalysis, error) {
	var cached models.PosterStyleAnalysis
	if !force {
		if ok, err := loadCache(s.db, models.AnalysisPosterStyles, &cached); err != nil {
			return nil, err
		} else if ok {
			return &cached, nil
		}
	}

	rows, err := database.AllRatedMovies(s.db)
	if err != nil {
		return nil, err
	}

	var analyses []models.PosterAnalysis
	if err := s.db.Find(&analyses).Error; err != nil {
		return nil, err
	}

	ratingByMovie := make(map[uint]int, len(rows))
	for _, row := range rows {
		ratingByMovie[row.Movie.ID] = row.Rating
	}

	type colorAcc struct {
		count int
		sum   int
		rgb   models.RGB
	}
	type styleAcc struct {
		count int
		sum   int
	}
	colorStats := make(map[string]*colorAcc)
	styleStats := make(map[string]*styleAcc)
	brightnessBands := make(map[string]*styleAcc)
	contrastBands := make(map[string]*styleAcc)
	var rated int

	tally := func(m map[string]*styleAcc, band string, rating int) {
		a := m[band]
		if a == nil {
			a = &styleAcc{}
			m[band] = a
		}
		a.count++
		a.sum += rating
	}

	// bestBand picks the band whose movies average the highest rating.
	// Ties go to the larger band, then alphabetically.
	bestBand := func(m map[string]*styleAcc) string {
		var best string
		var bestMean float64
		var bestCount int
		for band, a := range m {
			mean := float64(a.sum) / float64(a.count)
			better := mean > bestMean ||
				(mean == bestMean && a.count > bestCount) ||
				(mean == bestMean && a.count == bestCount && band < best)
			if best == "" || better {
				best, bestMean, bestCount = band, mean, a.count
			}
		}
		return best
	}

	for _, pa := range analyses {
		rating, ok := ratingByMovie[pa.MovieID]
		if !ok {
			continue
		}
		rated++
		tally(brightnessBands, preferenceBand(pa.BrightnessScore, "dark", "medium", "bright"), rating)
		tally(contrastBands, preferenceBand(pa.ContrastScore, "low", "medium", "high"), rating)

		seen := make(map[string]struct{})
		for _, rgb := range pa.DominantColors {
			name := colorName(rgb)
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			a := colorStats[name]
			if a == nil {
				a = &colorAcc{rgb: rgb}
				colorStats[name] = a
			}
			a.count++
			a.sum += rating
		}
		for _, tag := range pa.StyleTags {
			a := styleStats[tag]
			if a == nil {
				a = &styleAcc{}
				styleStats[tag] = a
			}
			a.count++
			a.sum += rating
		}
	}
	if rated == 0 {
		return &models.PosterStyleAnalysis{
			DominantColors:       []models.ColorStat{},
			StylePreferences:     []models.StyleStat{},
			BrightnessPreference: "unknown",
			ContrastPreference:   "unknown",
			Insights:             noDataInsight,
		}, nil
	}

	colors := make([]models.ColorStat, 0, len(colorStats))
	for name, a := range colorStats {
		if a.count < 2 {
			continue
		}
		colors = append(colors, models.ColorStat{
			ColorName:     name,
			RGBValues:     a.rgb,
			Frequency:     a.count,
			AverageRating: round2(float64(a.sum) / float64(a.count)),
		})
	}
	sortByRating(colors, func(st models.ColorStat) (float64, int, string) {
		return st.AverageRating, st.Frequency, st.ColorName
	})
	colors = topN(colors, 10)

	styles := make([]models.StyleStat, 0, len(styleStats))
	for tag, a := range styleStats {
		if a.count < 2 {
			continue
		}
		styles = append(styles, models.StyleStat{
			Style:         tag,
			Count:         a.count,
			AverageRating: round2(float64(a.sum) / float64(a.count)),
			Percentage:    round2(float64(a.count) / float64(rated) * 100),
		})
	}
	sortByRating(styles, func(st models.StyleStat) (float64, int, string) {
		return st.AverageRating, st.Count, st.Style
	})
	styles = topN(styles, 10)

	analysis := &models.PosterStyleAnalysis{
		DominantColors:       colors,
		StylePreferences:     styles,
		BrightnessPreference: bestBand(brightnessBands),
		ContrastPreference:   bestBand(contrastBands),
		Insights:             posterInsight(colors, styles),
	}
	if err := saveCache(s.db, models.AnalysisPosterStyles, analysis); err != nil {
		return nil, err
	}
	return analysis, nil
}

func posterInsight(colors []models.ColorStat, styles []models.StyleStat) string {
	if len(colors) == 0 && len(styles) == 0 {
		return "Not enough poster data to detect visual preferences yet."
	}
	var insight string
	if len(colors) > 0 {
		insight = fmt.Sprintf("Posters featuring %s tones correlate with your highest ratings (%.2f average).",
			colors[0].ColorName, colors[0].AverageRating)
	}
	if len(styles) > 0 {
		if insight != "" {
			insight += " "
		}
		insight += fmt.Sprintf("You respond best to %s poster designs.", styles[0].Style)
	}
	return insight
}

func preferenceBand(score float64, low, mid, high string) string {
	switch {
	case score < 0.33:
		return low
	case score > 0.66:
		return high
	default:
		return mid
	}
}

// resize scales an image to size x size with bilinear interpolation.
func resize(img image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

func collectPixels(img *image.RGBA) []models.RGB {
	bounds := img.Bounds()
	pixels := make([]models.RGB, 0, bounds.Dx()*bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			offset := img.PixOffset(x, y)
			pixels = append(pixels, models.RGB{
				int(img.Pix[offset]),
				int(img.Pix[offset+1]),
				int(img.Pix[offset+2]),
			})
		}
	}
	return pixels
}

// dominantColors clusters pixels with k-means. Seeding is farthest-point
// from the global mean so repeated runs give identical clusters.
func dominantColors(pixels []models.RGB, k int) []models.RGB {
	if len(pixels) == 0 {
		return nil
	}
	if len(pixels) <= k {
		out := make([]models.RGB, len(pixels))
		copy(out, pixels)
		return out
	}

	centroids := seedCentroids(pixels, k)
	assignments := make([]int, len(pixels))

	for iter := 0; iter < 10; iter++ {
		changed := false
		for i, p := range pixels {
			best := 0
			bestDist := colorDist(p, centroids[0])
			for c := 1; c < len(centroids); c++ {
				if d := colorDist(p, centroids[c]); d < bestDist {
					best = c
					bestDist = d
				}
			}
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		sums := make([][3]int, len(centroids))
		counts := make([]int, len(centroids))
		for i, p := range pixels {
			c := assignments[i]
			sums[c][0] += p[0]
			sums[c][1] += p[1]
			sums[c][2] += p[2]
			counts[c]++
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			centroids[c] = models.RGB{
				sums[c][0] / counts[c],
				sums[c][1] / counts[c],
				sums[c][2] / counts[c],
			}
		}
	}

	counts := make([]int, len(centroids))
	for _, c := range assignments {
		counts[c]++
	}
	order := make([]int, len(centroids))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	out := make([]models.RGB, 0, len(centroids))
	for _, idx := range order {
		if counts[idx] > 0 {
			out = append(out, centroids[idx])
		}
	}
	return out
}

// seedCentroids picks the first seed nearest the global mean color, then
// greedily adds the pixel farthest from all chosen seeds. Ties resolve to
// the lowest pixel index.
func seedCentroids(pixels []models.RGB, k int) []models.RGB {
	var mean [3]int
	for _, p := range pixels {
		mean[0] += p[0]
		mean[1] += p[1]
		mean[2] += p[2]
	}
	meanColor := models.RGB{mean[0] / len(pixels), mean[1] / len(pixels), mean[2] / len(pixels)}

	first, firstDist := 0, colorDist(pixels[0], meanColor)
	for i, p := range pixels[1:] {
		if d := colorDist(p, meanColor); d < firstDist {
			first = i + 1
			firstDist = d
		}
	}

	centroids := []models.RGB{pixels[first]}
	for len(centroids) < k {
		best, bestDist := 0, -1
		for i, p := range pixels {
			nearest := colorDist(p, centroids[0])
			for _, c := range centroids[1:] {
				if d := colorDist(p, c); d < nearest {
					nearest = d
				}
			}
			if nearest > bestDist {
				best = i
				bestDist = nearest
			}
		}
		centroids = append(centroids, pixels[best])
	}
	return centroids
}

func colorDist(a, b models.RGB) int {
	dr := a[0] - b[0]
	dg := a[1] - b[1]
	db := a[2] - b[2]
	return dr*dr + dg*dg + db*db
}

func meanBrightness(pixels []models.RGB) float64 {
	if len(pixels) == 0 {
		return 0
	}
	var sum float64
	for _, p := range pixels {
		sum += float64(p[0]+p[1]+p[2]) / 3
	}
	return sum / float64(len(pixels)) / 255
}

// contrastScore is the standard deviation of pixel luminance scaled so a
// half-range spread maps to 1.0. Not clamped.
func contrastScore(pixels []models.RGB) float64 {
	if len(pixels) == 0 {
		return 0
	}
	luminances := make([]float64, len(pixels))
	var mean float64
	for i, p := range pixels {
		luminances[i] = float64(p[0]+p[1]+p[2]) / 3
		mean += luminances[i]
	}
	mean /= float64(len(pixels))

	var variance float64
	for _, l := range luminances {
		d := l - mean
		variance += d * d
	}
	variance /= float64(len(pixels))
	return math.Sqrt(variance) / 128
}

// textRatio estimates how much of the poster is text or sharp detail from
// the fraction of strong luminance gradients, scaled x2 and capped at 1.
func textRatio(img *image.RGBA) float64 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 2 || h < 2 {
		return 0
	}

	lum := func(x, y int) int {
		offset := img.PixOffset(x, y)
		return (int(img.Pix[offset]) + int(img.Pix[offset+1]) + int(img.Pix[offset+2])) / 3
	}

	var strong, total int
	for y := 0; y < h-1; y++ {
		for x := 0; x < w-1; x++ {
			gx := lum(x+1, y) - lum(x, y)
			gy := lum(x, y+1) - lum(x, y)
			if gx < 0 {
				gx = -gx
			}
			if gy < 0 {
				gy = -gy
			}
			if gx+gy > 20 {
				strong++
			}
			total++
		}
	}

	ratio := float64(strong) / float64(total) * 2
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}

// styleTags classifies a poster into coarse visual categories.
func styleTags(brightness, contrast float64, colors []models.RGB) []string {
	var tags []string

	switch {
	case brightness < 0.3:
		tags = append(tags, "dark")
	case brightness > 0.7:
		tags = append(tags, "bright")
	default:
		tags = append(tags, "balanced")
	}

	switch {
	case contrast > 0.6:
		tags = append(tags, "high-contrast")
	case contrast < 0.3:
		tags = append(tags, "low-contrast")
	default:
		tags = append(tags, "medium-contrast")
	}

	if colorVariance(colors) > 1000 {
		tags = append(tags, "colorful")
	} else {
		tags = append(tags, "muted")
	}
	return tags
}

// colorVariance is the variance of all channel values across the
// dominant colors.
func colorVariance(colors []models.RGB) float64 {
	if len(colors) == 0 {
		return 0
	}
	var values []float64
	for _, c := range colors {
		values = append(values, float64(c[0]), float64(c[1]), float64(c[2]))
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	return variance / float64(len(values))
}

// colorName maps an RGB triple to a coarse human color name.
func colorName(c models.RGB) string {
	r, g, b := c[0], c[1], c[2]
	switch {
	case r > 200 && g > 200 && b > 200:
		return "white"
	case r < 50 && g < 50 && b < 50:
		return "black"
	case r > g+30 && r > b+30:
		if g > 100 {
			return "orange"
		}
		return "red"
	case g > r+30 && g > b+30:
		return "green"
	case b > r+30 && b > g+30:
		return "blue"
	case r > 150 && g > 150 && b < 100:
		return "yellow"
	case r > 150 && b > 150 && g < 100:
		return "purple"
	case g > 150 && b > 150 && r < 100:
		return "cyan"
	default:
		return "neutral"
	}
}
