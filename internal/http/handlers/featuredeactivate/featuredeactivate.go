// Package featuredeactivate реализует HTTP-обработчик досрочного снятия выделения.
//
// Handler извлекает ID объявления и вид выделения из URL-параметров и снимает
// активное выделение. Операция идемпотентна: повторный вызов возвращает
// deactivated=false без ошибки.
package featuredeactivate

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

// Handler обрабатывает запросы на снятие выделения объявления.
type Handler struct {
	log     *slog.Logger // Логгер для записи информации и ошибок
	service Service      // Сервис бизнес-логики выделений
}

// Service описывает интерфейс бизнес-логики снятия выделения.
type Service interface {
	Deactivate(ctx context.Context, resourceID int64, featureType models.FeatureType) (bool, error)
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Снять выделение досрочно
// @Description Переводит активное выделение в expired. Возвращает true только вызову, выполнившему переход.
// @Tags Features
// @Produce  json
// @Param resourceID path int true "ID объявления"
// @Param featureType path string true "Вид выделения (pinned, urgent, highlighted)"
// @Success 200 {object} map[string]any "Результат снятия"
// @Failure 400 {object} response.ErrorResponse "Некорректные параметры URL"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /features/{resourceID}/{featureType} [delete]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.featuredeactivate"
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

	deactivated, err := h.service.Deactivate(r.Context(), resourceID, featureType)
	if err != nil {
		log.Error("failed to deactivate feature", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not deactivate feature"))
		return
	}

	log.Info("feature deactivation handled",
		slog.Int64("resource_id", resourceID),
		slog.String("feature_type", featureType.String()),
		slog.Bool("deactivated", deactivated))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"resource_id":  resourceID,
		"feature_type": featureType.String(),
		"deactivated":  deactivated,
	}))
}
