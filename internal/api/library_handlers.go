package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rongwang/library-server/internal/models"
	"github.com/rongwang/library-server/internal/service"
)

// Catalog handlers
func (h *Handler) SearchBooks(c *gin.Context) {
	var q models.SearchBooksQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, err)
		return
	}

	books, err := h.service.SearchBooks(c.Request.Context(), q.Title, q.Author)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, books)
}

// Rental handlers
func (h *Handler) ToggleRentalStatus(c *gin.Context) {
	var uri models.BookURI
	if err := c.ShouldBindUri(&uri); err != nil {
		h.badRequest(c, err)
		return
	}

	changes, err := h.service.ToggleRentalStatus(c.Request.Context(), uri.BookID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, changes)
}

// User handlers

// CreateUser answers 409 for an unsupported user type as well as for a
// taken name.
func (h *Handler) CreateUser(c *gin.Context) {
	var uri models.CreateUserURI
	if err := c.ShouldBindUri(&uri); err != nil {
		h.respond(c, http.StatusConflict, "INVALID_ARGUMENT", service.InvalidArgument("User type is not supported"))
		return
	}

	resp, err := h.service.CreateUser(c.Request.Context(), uri.UserName, uri.UserType)
	if err != nil {
		if service.KindOf(err) == service.KindInvalidArgument {
			h.respond(c, http.StatusConflict, "INVALID_ARGUMENT", err)
			return
		}
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// Wishlist handlers
func (h *Handler) AddToWishlist(c *gin.Context) {
	var uri models.WishlistURI
	if err := c.ShouldBindUri(&uri); err != nil {
		h.badRequest(c, err)
		return
	}

	result, err := h.service.AddToWishlist(c.Request.Context(), uri.UserName, uri.BookID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusOK
	if result.Outcome == models.WishlistCreated {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

func (h *Handler) RemoveFromWishlist(c *gin.Context) {
	var uri models.WishlistURI
	if err := c.ShouldBindUri(&uri); err != nil {
		h.badRequest(c, err)
		return
	}

	if err := h.service.RemoveFromWishlist(c.Request.Context(), uri.UserName, uri.BookID); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Report handlers
func (h *Handler) AmountReport(c *gin.Context) {
	var uri models.AmountReportURI
	if err := c.ShouldBindUri(&uri); err != nil {
		h.respond(c, http.StatusBadRequest, "INVALID_ARGUMENT", service.InvalidArgument("Book status is not supported"))
		return
	}

	rows, err := h.service.AmountReport(c.Request.Context(), uri.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rows)
}

func (h *Handler) TopRentals(c *gin.Context) {
	rows, err := h.service.TopRentals(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rows)
}

func (h *Handler) TopRentalsByUsername(c *gin.Context) {
	rows, err := h.service.TopRentalsByUsername(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rows)
}
