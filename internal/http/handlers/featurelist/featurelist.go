// Package featurelist реализует HTTP-обработчик получения активных выделений объявления.
//
// Handler извлекает ID объявления из URL-параметров и возвращает список
// активных видов выделений в JSON-формате.
package featurelist

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/listing-entitlements/internal/http/response"
	"github.com/magabrotheeeer/listing-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/listing-entitlements/internal/models"
)

// Handler обрабатывает запросы на получение активных выделений объявления.
type Handler struct {
	log     *slog.Logger // Логгер для записи информации и ошибок
	service Service      // Сервис бизнес-логики выделений
}

// Service описывает интерфейс бизнес-логики списка выделений.
type Service interface {
	ActiveFeatures(ctx context.Context, resourceID int64) ([]models.FeatureType, error)
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Список активных выделений объявления
// @Description Возвращает все активные виды выделений для указанного объявления.
// @Tags Features
// @Produce  json
// @Param resourceID path int true "ID объявления"
// @Success 200 {object} map[string]any "Список активных выделений"
// @Failure 400 {object} response.ErrorResponse "Некорректный ID объявления"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /features/{resourceID} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.featurelist"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	resourceID, err := strconv.ParseInt(chi.URLParam(r, "resourceID"), 10, 64)
	if err != nil {
		log.Error("failed to decode resource id from url", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid resource id"))
		return
	}

	features, err := h.service.ActiveFeatures(r.Context(), resourceID)
	if err != nil {
		log.Error("failed to list active features", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not list active features"))
		return
	}

	names := make([]string, 0, len(features))
	for _, ft := range features {
		names = append(names, ft.String())
	}

	log.Info("active features listed",
		slog.Int64("resource_id", resourceID),
		slog.Int("count", len(names)))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"resource_id": resourceID,
		"features":    names,
	}))
}
