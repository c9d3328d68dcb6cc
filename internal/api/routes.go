package api

import (
	"cinescope/internal/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SetupRouter builds the gin engine with middleware and all routes.
func SetupRouter(cfg *config.Config, logger *zap.Logger, handlers *Handlers) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(logger))
	router.Use(RecoveryMiddleware(logger))
	router.Use(CORSMiddleware())
	router.Use(RateLimitMiddleware(cfg))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck)
		v1.GET("/ready", handlers.ReadyCheck)

		analysis := v1.Group("/analysis")
		{
			analysis.GET("/genres", handlers.GetGenreAnalysis)
			analysis.GET("/years", handlers.GetYearAnalysis)
			analysis.GET("/runtime", handlers.GetRuntimeAnalysis)
			analysis.GET("/cast", handlers.GetCastAnalysis)
			analysis.GET("/poster-style", handlers.GetPosterStyleAnalysis)
			analysis.GET("/insights", handlers.GetOverallInsights)
			analysis.GET("/recommendations", handlers.GetRecommendations)
			analysis.POST("/regenerate/:kind", handlers.RegenerateAnalyses)
		}

		ratings := v1.Group("/ratings")
		{
			ratings.GET("", handlers.ListRatings)
			ratings.GET("/stats", handlers.GetRatingStats)
			ratings.GET("/genres", handlers.ListGenres)
			ratings.GET("/:imdb_id", handlers.GetMovie)
		}

		scraping := v1.Group("/scraping")
		{
			scraping.POST("/import-csv", handlers.ImportCSV)
			scraping.POST("/scrape-posters", handlers.ScrapePosters)
			scraping.POST("/stop", handlers.StopJob)
			scraping.GET("/status", handlers.JobStatus)
			scraping.DELETE("/reset", handlers.ResetData)
		}

		chat := v1.Group("/chat")
		{
			chat.POST("/message", handlers.SendChatMessage)
			chat.GET("/conversations", handlers.ListConversations)
			chat.GET("/history/:conversation_id", handlers.GetChatHistory)
			chat.DELETE("/history", handlers.ClearChatHistory)
		}
	}

	return router
}
