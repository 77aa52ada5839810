package api

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/rongwang/library-server/internal/models"
	"github.com/rongwang/library-server/internal/service"
)

// Handler handles API requests
type Handler struct {
	service service.Service
	logger  zerolog.Logger
}

// NewHandler creates a new Handler
func NewHandler(svc service.Service, logger zerolog.Logger) *Handler {
	h := &Handler{
		service: svc,
		logger:  logger.With().Str("component", "api").Logger(),
	}
	if err := registerValidators(); err != nil {
		h.logger.Error().Err(err).Msg("custom validators not registered")
	}
	return h
}

// SetupRoutes registers every route on the router
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)

	v1 := router.Group("/v1")
	{
		v1.GET("/books/search", h.SearchBooks)

		v1.POST("/rentals/:book_id", h.ToggleRentalStatus)

		v1.POST("/users/:user_name/:user_type", h.CreateUser)

		v1.POST("/wishlists/:user_name/:book_id", h.AddToWishlist)
		v1.DELETE("/wishlists/:user_name/:book_id", h.RemoveFromWishlist)

		reports := v1.Group("/reports")
		{
			reports.GET("/amount/:status", h.AmountReport)
			reports.GET("/top_rentals", h.TopRentals)
			reports.GET("/top_rentals_by_username", h.TopRentalsByUsername)
		}
	}
}

// NewRouter builds a gin engine with the standard middleware and routes
func NewRouter(h *Handler, logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestIDMiddleware(), LoggerMiddleware(logger))
	h.SetupRoutes(router)
	return router
}

var (
	validatorsOnce sync.Once
	validatorsErr  error
)

// customValidations backs the binding tags used on the URI structs
var customValidations = map[string]validator.Func{
	"bookstatus": func(fl validator.FieldLevel) bool {
		return models.IsValidBookStatus(fl.Field().String())
	},
	"usertype": func(fl validator.FieldLevel) bool {
		return models.IsValidUserType(fl.Field().String())
	},
}

// registerValidators installs customValidations on gin's validator once and
// returns the outcome of that first attempt on every call
func registerValidators() error {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			validatorsErr = fmt.Errorf("unexpected binding engine %T", binding.Validator.Engine())
			return
		}
		validatorsErr = registerValidations(v, customValidations)
	})
	return validatorsErr
}

func registerValidations(v *validator.Validate, fns map[string]validator.Func) error {
	var errs []error
	for tag, fn := range fns {
		if err := v.RegisterValidation(tag, fn); err != nil {
			errs = append(errs, fmt.Errorf("register %q validator: %w", tag, err))
		}
	}
	return errors.Join(errs...)
}

func (h *Handler) Health(c *gin.Context) {
	if err := h.service.Ping(c.Request.Context()); err != nil {
		h.logger.Error().Err(err).Msg("store ping failed")
		c.JSON(http.StatusServiceUnavailable, models.HealthResponse{Status: "error", Store: "down"})
		return
	}
	c.JSON(http.StatusOK, models.HealthResponse{Status: "ok", Store: "up"})
}

// errorStatus maps a service error onto an HTTP status and error code
func errorStatus(err error) (int, string) {
	switch service.KindOf(err) {
	case service.KindNotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case service.KindInvalidArgument:
		return http.StatusBadRequest, "INVALID_ARGUMENT"
	case service.KindConflict:
		return http.StatusConflict, "CONFLICT"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	h.respond(c, status, code, err)
}

func (h *Handler) respond(c *gin.Context, status int, code string, err error) {
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).
			Str("request_id", c.GetString(requestIDKey)).
			Msg("request failed")
		msg = "Internal server error"
	}
	_ = c.Error(err)

	c.JSON(status, models.ErrorResponse{
		Status:  "error",
		Code:    code,
		Message: msg,
	})
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Status:  "error",
		Code:    "INVALID_REQUEST",
		Message: err.Error(),
	})
}
