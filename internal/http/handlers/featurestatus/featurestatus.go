// Package featurestatus реализует HTTP-обработчик проверки активности выделения.
//
// Handler извлекает ID объявления и вид выделения из URL-параметров, вызывает
// бизнес-логику проверки и возвращает флаг активности в JSON-формате.
package featurestatus

import (
	"context"
	"errors"
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

// Handler обрабатывает запросы на проверку активности выделения объявления.
type Handler struct {
	log     *slog.Logger // Логгер для записи информации и ошибок
	service Service      // Сервис бизнес-логики выделений
}

// Service описывает интерфейс бизнес-логики проверки выделения.
type Service interface {
	IsActive(ctx context.Context, resourceID int64, featureType models.FeatureType) (bool, error)
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Проверить активность выделения
// @Description Возвращает true, если выделение указанного вида активно для объявления.
// @Tags Features
// @Produce  json
// @Param resourceID path int true "ID объявления"
// @Param featureType path string true "Вид выделения (pinned, urgent, highlighted)"
// @Success 200 {object} map[string]any "Статус выделения"
// @Failure 400 {object} response.ErrorResponse "Некорректные параметры URL"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /features/{resourceID}/{featureType} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.featurestatus"
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

	featureType, err := models.ParseFeatureType(chi.URLParam(r, "featureType"))
	if err != nil {
		if errors.Is(err, models.ErrInvalidFeatureType) {
			log.Error("unknown feature type", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("unknown feature type"))
			return
		}
		log.Error("failed to parse feature type", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid feature type"))
		return
	}

	active, err := h.service.IsActive(r.Context(), resourceID, featureType)
	if err != nil {
		log.Error("failed to check feature status", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not check feature status"))
		return
	}

	log.Info("feature status checked",
		slog.Int64("resource_id", resourceID),
		slog.String("feature_type", featureType.String()),
		slog.Bool("active", active))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"resource_id":  resourceID,
		"feature_type": featureType.String(),
		"active":       active,
	}))
}
