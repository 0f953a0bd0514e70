package utils

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/LexiconIndonesia/tesauro-crawler/common/models"
	"github.com/rs/zerolog/log"
)

const (
	defaultPerPage = 50
	maxPerPage     = 500
)

// WriteJSON writes data wrapped in a BaseResponse.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	write(w, statusCode, models.BaseResponse{Data: data})
}

// WriteError writes an ErrorResponse for statusCode.
func WriteError(w http.ResponseWriter, statusCode int, errorMessage string) {
	write(w, statusCode, models.ErrorResponse{
		Error: http.StatusText(statusCode),
		Msg:   errorMessage,
	})
}

// WritePagination writes one page of data with its pagination metadata.
func WritePagination(w http.ResponseWriter, statusCode int, data interface{}, currentPage, perPage int, total int64) {
	var lastPage int64
	if perPage > 0 {
		lastPage = (total + int64(perPage) - 1) / int64(perPage)
	}

	write(w, statusCode, models.BasePaginationResponse{
		Data: data,
		Meta: models.MetaResponse{
			CurrentPage: int64(currentPage),
			LastPage:    lastPage,
			PerPage:     int64(perPage),
			Total:       total,
		},
	})
}

// PageParams reads the page and per_page query parameters. Missing or
// invalid values fall back to the first page of defaultPerPage items.
func PageParams(r *http.Request) (page, perPage int) {
	page, perPage = 1, defaultPerPage
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("per_page")); err == nil && v > 0 {
		perPage = min(v, maxPerPage)
	}
	return page, perPage
}

// PageBounds returns the slice bounds of page within total items. Pages past
// the end yield an empty range.
func PageBounds(page, perPage, total int) (start, end int) {
	if perPage < 1 || total < 1 {
		return 0, 0
	}
	page = max(page, 1)
	if page-1 > total/perPage {
		return total, total
	}
	start = min((page-1)*perPage, total)
	end = min(start+perPage, total)
	return start, end
}

func write(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Int("status", statusCode).Msg("Failed to encode response")
	}
}
