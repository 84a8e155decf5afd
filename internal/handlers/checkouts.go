package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"librarycatalog/internal/repositories"
)

type checkoutRequest struct {
	BookID uint `json:"book_id" binding:"required"`
	UserID uint `json:"user_id" binding:"required"`
}

func (h *LibraryHandler) checkoutBook(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "book_id and user_id are required")
		return
	}

	checkout, err := h.svc.CheckoutBook(c.Request.Context(), req.BookID, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":     "Book checked out successfully",
		"checkout_id": checkout.CheckoutID,
		"book_id":     checkout.BookID,
		"user_id":     checkout.UserID,
		"due_date":    checkout.DueDate,
	})
}

func (h *LibraryHandler) returnCheckout(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	checkout, err := h.svc.ReturnCheckout(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "Book returned successfully",
		"checkout_id": checkout.CheckoutID,
		"book_id":     checkout.BookID,
		"return_date": checkout.ReturnDate,
	})
}

func (h *LibraryHandler) getCheckout(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	detail, err := h.svc.GetCheckout(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *LibraryHandler) listCheckouts(c *gin.Context) {
	var f repositories.CheckoutFilter
	var err error
	if f.UserID, err = queryUint(c, "user_id"); err != nil {
		badRequest(c, err.Error())
		return
	}
	if f.Active, err = queryBool(c, "active"); err != nil {
		badRequest(c, err.Error())
		return
	}

	checkouts, err := h.svc.ListCheckouts(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkouts": checkouts, "count": len(checkouts)})
}

func (h *LibraryHandler) userHistory(c *gin.Context) {
	userID, ok := idParam(c, "user_id")
	if !ok {
		return
	}

	checkouts, err := h.svc.ListCheckouts(c.Request.Context(), repositories.CheckoutFilter{UserID: &userID})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "checkouts": checkouts, "total": len(checkouts)})
}
