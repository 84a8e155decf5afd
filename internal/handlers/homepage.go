package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"librarycatalog/internal/services"
)

// homepage returns trending books and, when user_id is given, that user's
// recommendations. Without a user the recommendations object is empty.
func (h *LibraryHandler) homepage(c *gin.Context) {
	userID, err := queryUint(c, "user_id")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()

	trending, err := h.discovery.Trending(ctx, services.DefaultTrendingWindow, services.DefaultTrendingTopN)
	if err != nil {
		respondError(c, err)
		return
	}

	var recommendations interface{} = gin.H{}
	if userID != nil {
		rec, err := h.discovery.Recommend(ctx, *userID)
		if err != nil {
			respondError(c, err)
			return
		}
		recommendations = rec
	}
	c.JSON(http.StatusOK, gin.H{"trending": trending, "recommendations": recommendations})
}

func (h *LibraryHandler) trending(c *gin.Context) {
	trending, err := h.discovery.Trending(c.Request.Context(), services.DefaultTrendingWindow, services.DefaultTrendingTopN)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trending": trending})
}

func (h *LibraryHandler) recommendations(c *gin.Context) {
	userID, ok := idParam(c, "user_id")
	if !ok {
		return
	}

	rec, err := h.discovery.Recommend(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "recommendations": rec})
}
