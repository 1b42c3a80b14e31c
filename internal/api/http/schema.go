package http

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/linkcut/linkcut/internal/entity"
)

const statusError = "error"

// shortenRequest represents the structure for a request to shorten a URL.
type shortenRequest struct {
	URL       string     `json:"url" validate:"required,url"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// urlResponse represents the structure for a response containing shortened URL information.
type urlResponse struct {
	ShortCode   string     `json:"short_code"`
	ShortURL    string     `json:"short_url"`
	OriginalURL string     `json:"original_url"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func shortLink(baseURL, shortCode string) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + shortCode
}

// toURLResponse converts an entity.URL to a urlResponse.
func toURLResponse(url *entity.URL, baseURL string) urlResponse {
	return urlResponse{
		ShortCode:   url.ShortCode,
		ShortURL:    shortLink(baseURL, url.ShortCode),
		OriginalURL: url.OriginalURL,
		CreatedAt:   url.CreatedAt,
		ExpiresAt:   url.ExpiresAt,
	}
}

// urlStatsResponse represents the structure for a response containing URL statistics.
type urlStatsResponse struct {
	ShortCode   string     `json:"short_code"`
	OriginalURL string     `json:"original_url"`
	Stats       urlStats   `json:"stats"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// urlStats represents the statistics for a URL.
type urlStats struct {
	ClickCount int64 `json:"click_count"`
}

// toURLStatsResponse converts an entity.URL to a urlStatsResponse.
func toURLStatsResponse(url *entity.URL) urlStatsResponse {
	return urlStatsResponse{
		ShortCode:   url.ShortCode,
		OriginalURL: url.OriginalURL,
		Stats: urlStats{
			ClickCount: url.URLStats.ClickCount,
		},
		CreatedAt: url.CreatedAt,
		ExpiresAt: url.ExpiresAt,
	}
}

// validationError represents an individual validation error.
type validationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// errorResponse represents a structured error response.
type errorResponse struct {
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	Errors    []validationError `json:"errors,omitempty"`
}

// Predefined error responses for common scenarios.
var (
	emptyRequestBodyResponse = errorResponse{
		Status:  statusError,
		Message: "empty request body",
	}

	invalidRequestBodyResponse = errorResponse{
		Status:  statusError,
		Message: "invalid request body",
	}

	urlNotFoundResponse = errorResponse{
		Status:  statusError,
		Message: "url not found",
	}

	serverErrorResponse = errorResponse{
		Status:  statusError,
		Message: "server error occurred",
	}
)

// urlExpiredResponse constructs an errorResponse carrying the expiration instant.
func urlExpiredResponse(expiresAt time.Time) errorResponse {
	return errorResponse{
		Status:    statusError,
		Message:   "url expired",
		ExpiresAt: &expiresAt,
	}
}

// messageForTag returns a user-friendly message based on the validation tag.
func messageForTag(tag string) string {
	switch tag {
	case "required":
		return "this field is required"
	case "url":
		return "invalid url"
	default:
		return "invalid value"
	}
}

// getValidationErrors processes validation errors and returns a list of validationError.
func getValidationErrors(err error) []validationError {
	var validationErrs []validationError

	errs, ok := err.(validator.ValidationErrors)
	if ok {
		for _, e := range errs {
			validationErrs = append(validationErrs, validationError{
				Field:   e.Field(),
				Message: messageForTag(e.Tag()),
			})
		}
	}

	return validationErrs
}

// validationErrorResponse constructs an errorResponse for validation errors.
func validationErrorResponse(err error) errorResponse {
	return errorResponse{
		Status:  statusError,
		Message: "validation error",
		Errors:  getValidationErrors(err),
	}
}
