package handler

import (
	"net/http"

	"github.com/LexiconIndonesia/tesauro-crawler/common/utils"
	"github.com/LexiconIndonesia/tesauro-crawler/crawlers/tesauro"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// RecordSource returns the records of the results file.
type RecordSource interface {
	Records() ([]tesauro.Record, error)
}

type RecordHandler struct {
	source RecordSource
	router *chi.Mux
}

func NewRecordHandler(source RecordSource) *RecordHandler {
	router := chi.NewRouter()

	h := &RecordHandler{
		source: source,
		router: router,
	}

	router.Get("/", h.handleListRecords)

	return h
}

func (h *RecordHandler) Router() *chi.Mux {
	return h.router
}

func (h *RecordHandler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.source.Records()
	if err != nil {
		log.Error().Err(err).Msg("Failed to read results file")
		utils.WriteError(w, http.StatusInternalServerError, "failed to read records")
		return
	}

	page, perPage := utils.PageParams(r)
	start, end := utils.PageBounds(page, perPage, len(records))
	utils.WritePagination(w, http.StatusOK, records[start:end], page, perPage, int64(len(records)))
}
