package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"librarycatalog/internal/repositories"
	"librarycatalog/internal/services"
)

func (h *LibraryHandler) listBooks(c *gin.Context) {
	f := repositories.BookFilter{
		Search: c.Query("search"),
		Author: c.Query("author"),
		Genre:  c.Query("genre"),
		SortBy: c.Query("sort_by"),
		Order:  c.Query("order"),
	}
	var err error
	if f.Year, err = queryInt(c, "year"); err != nil {
		badRequest(c, err.Error())
		return
	}
	if f.Available, err = queryBool(c, "available"); err != nil {
		badRequest(c, err.Error())
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if limit != nil {
		f.Limit = *limit
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if offset != nil {
		f.Offset = *offset
	}
	f = f.Normalize()

	books, total, err := h.svc.SearchBooks(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"books":  books,
		"total":  total,
		"limit":  f.Limit,
		"offset": f.Offset,
	})
}

func (h *LibraryHandler) quickSearch(c *gin.Context) {
	q := c.Query("q")
	limit := repositories.DefaultPageSize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "invalid limit")
			return
		}
		limit = n
	}

	results, err := h.svc.QuickSearch(c.Request.Context(), q, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": q, "results": results, "count": len(results)})
}

func (h *LibraryHandler) filterOptions(c *gin.Context) {
	opts, err := h.svc.FilterOptions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, opts)
}

func (h *LibraryHandler) getBook(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	book, err := h.svc.GetBook(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *LibraryHandler) patchBook(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, "invalid request body")
		return
	}

	// Availability belongs to checkout and return; refuse it here.
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(body, &keys); err != nil {
		badRequest(c, "request body must be a JSON object")
		return
	}
	for _, f := range services.AvailabilityFields {
		if _, present := keys[f]; present {
			badRequest(c, f+" can only change through checkout and return")
			return
		}
	}
	var patch services.BookPatch
	if err := json.Unmarshal(body, &patch); err != nil {
		badRequest(c, "invalid field type")
		return
	}

	book, err := h.svc.UpdateBook(c.Request.Context(), id, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Book updated successfully", "book": book})
}
