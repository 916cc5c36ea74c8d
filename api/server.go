// Package api serves the harvested article collection over HTTP.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pevans/harvest/store"
)

// Paging limits for GET /api/v1/articles.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ArticleAPIServer represents the read-only HTTP API over a store.
type ArticleAPIServer struct {
	lister store.Lister
}

// NewArticleAPIServer creates a new article API server.
func NewArticleAPIServer(lister store.Lister) *ArticleAPIServer {
	return &ArticleAPIServer{
		lister: lister,
	}
}

// ArticleListResponse is the body of GET /api/v1/articles.
type ArticleListResponse struct {
	Articles []store.Article `json:"articles"`
	Total    int             `json:"total"`
	Limit    int             `json:"limit"`
	Offset   int             `json:"offset"`
}

// SetupRouter configures the Gin router with article API routes.
func (s *ArticleAPIServer) SetupRouter() *gin.Engine {
	router := gin.Default()

	// Add CORS middleware
	router.Use(func(ctx *gin.Context) {
		ctx.Header("Access-Control-Allow-Origin", "*")
		ctx.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		ctx.Header("Access-Control-Allow-Headers", "Content-Type")

		if ctx.Request.Method == "OPTIONS" {
			ctx.AbortWithStatus(http.StatusOK)
			return
		}

		ctx.Next()
	})

	router.GET("/healthz", s.HandleHealth)

	api := router.Group("/api/v1/articles")
	api.GET("", s.HandleListArticles)
	api.GET("/lookup", s.HandleLookupArticle)

	return router
}

// errorResponse creates a standardized error response.
func errorResponse(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// HandleHealth handles GET /healthz.
func (s *ArticleAPIServer) HandleHealth(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleListArticles handles GET /api/v1/articles.
func (s *ArticleAPIServer) HandleListArticles(ctx *gin.Context) {
	limit, ok := queryInt(ctx, "limit", DefaultLimit)
	if !ok || limit < 1 || limit > MaxLimit {
		ctx.JSON(http.StatusBadRequest, errorResponse("validation_error", "limit must be between 1 and "+strconv.Itoa(MaxLimit)))
		return
	}

	offset, ok := queryInt(ctx, "offset", 0)
	if !ok || offset < 0 {
		ctx.JSON(http.StatusBadRequest, errorResponse("validation_error", "offset must be a non-negative integer"))
		return
	}

	articles, total, err := s.lister.List(ctx.Request.Context(), limit, offset)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to list articles"))
		return
	}

	ctx.JSON(http.StatusOK, ArticleListResponse{
		Articles: articles,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}

// HandleLookupArticle handles GET /api/v1/articles/lookup?url=.
func (s *ArticleAPIServer) HandleLookupArticle(ctx *gin.Context) {
	articleURL := ctx.Query("url")
	if articleURL == "" {
		ctx.JSON(http.StatusBadRequest, errorResponse("bad_request", "url query parameter is required"))
		return
	}

	article, err := s.lister.Get(ctx.Request.Context(), articleURL)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to retrieve article"))
		return
	}
	if article == nil {
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", "Article not found"))
		return
	}

	ctx.JSON(http.StatusOK, article)
}

func queryInt(ctx *gin.Context, key string, fallback int) (int, bool) {
	raw := ctx.Query(key)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
