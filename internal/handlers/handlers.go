package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"librarycatalog/internal/logging"
	"librarycatalog/internal/services"
)

// Pinger reports whether the store is reachable.
type Pinger func(ctx context.Context) error

type LibraryHandler struct {
	svc       services.LibraryService
	discovery services.DiscoveryService
	ping      Pinger
}

func RegisterRoutes(r *gin.Engine, svc services.LibraryService, discovery services.DiscoveryService, ping Pinger) {
	h := &LibraryHandler{svc: svc, discovery: discovery, ping: ping}

	r.GET("/healthz", h.healthz)

	api := r.Group("/api")

	// Accounts
	api.POST("/users", h.register)
	api.POST("/users/login", h.login)
	api.GET("/users/:id", h.getUser)
	api.PUT("/users/:id", h.updateUser)
	api.DELETE("/users/:id", h.deleteUser)

	// Catalog
	api.GET("/books", h.listBooks)
	api.GET("/books/search", h.quickSearch)
	api.GET("/books/filters", h.filterOptions)
	api.GET("/books/:id", h.getBook)
	api.PATCH("/books/:id", h.patchBook)

	// Checkouts
	api.POST("/checkouts", h.checkoutBook)
	api.GET("/checkouts", h.listCheckouts)
	api.GET("/checkouts/:id", h.getCheckout)
	api.DELETE("/checkouts/:id", h.returnCheckout)
	api.GET("/checkouts/user/:user_id/history", h.userHistory)

	// Homepage
	api.GET("/homepage", h.homepage)
	api.GET("/homepage/trending", h.trending)
	api.GET("/homepage/recommendations/:user_id", h.recommendations)
}

func (h *LibraryHandler) healthz(c *gin.Context) {
	if err := h.ping(c.Request.Context()); err != nil {
		logging.Ctx(c.Request.Context()).Error().Err(err).Msg("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "database unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// respondError maps service errors to status codes. Unexpected errors are
// logged and answered with a generic body.
func respondError(c *gin.Context, err error) {
	var unavailable *services.BookUnavailableError
	switch {
	case errors.As(err, &unavailable):
		body := gin.H{
			"error":   "Book is not available",
			"message": "This book is currently checked out",
		}
		if unavailable.DueDate != nil {
			body["due_date"] = unavailable.DueDate
		}
		c.JSON(http.StatusConflict, body)
	case errors.Is(err, services.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrBookNotFound),
		errors.Is(err, services.ErrCheckoutNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrCheckoutAlreadyReturned):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrDuplicateUsername),
		errors.Is(err, services.ErrDuplicateISBN),
		errors.Is(err, services.ErrUserHasActiveCheckouts):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		logging.Ctx(c.Request.Context()).Error().Err(err).
			Str("route", c.FullPath()).
			Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// idParam parses a positive integer path parameter, answering 400 otherwise.
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// Optional query parsers; absent parameters yield nil.

func queryUint(c *gin.Context, name string) (*uint, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		return nil, errors.New("invalid " + name)
	}
	u := uint(v)
	return &u, nil
}

func queryInt(c *gin.Context, name string) (*int, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, errors.New("invalid " + name)
	}
	return &v, nil
}

func queryBool(c *gin.Context, name string) (*bool, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errors.New("invalid " + name)
	}
	return &v, nil
}
