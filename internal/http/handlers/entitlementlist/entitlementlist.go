// Package entitlementlist реализует HTTP-обработчик получения квот владельца.
//
// Handler извлекает UID владельца и параметры пагинации из query-параметров,
// вызывает бизнес-логику и возвращает список квот в JSON-формате.
package entitlementlist

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/listing-entitlements/internal/http/response"
	"github.com/magabrotheeeer/listing-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/listing-entitlements/internal/models"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Handler обрабатывает запросы на получение списка квот владельца.
type Handler struct {
	log      *slog.Logger        // Логгер для записи информации и ошибок
	service  Service             // Сервис бизнес-логики реестра квот
	validate *validator.Validate // Валидатор query-параметров
}

// Service описывает интерфейс бизнес-логики списка квот.
type Service interface {
	ListByOwner(ctx context.Context, ownerUID string, limit, offset int) ([]*models.Entitlement, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Список квот владельца
// @Description Возвращает квоты владельца, отсортированные по сроку истечения.
// @Tags Entitlements
// @Produce  json
// @Param owner_uid query string true "UID владельца"
// @Param limit query int false "Максимум записей (по умолчанию 20, не более 100)"
// @Param offset query int false "Смещение"
// @Success 200 {object} map[string]any "Список квот"
// @Failure 422 {object} response.ErrorResponse "Некорректный UID владельца"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /entitlements [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.entitlementlist"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	ownerUID := r.URL.Query().Get("owner_uid")
	if err := h.validate.Var(ownerUID, "required,uuid"); err != nil {
		log.Error("invalid owner uid", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("owner_uid must be a valid UUID"))
		return
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}

	entitlements, err := h.service.ListByOwner(r.Context(), ownerUID, limit, offset)
	if err != nil {
		log.Error("failed to list entitlements", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not list entitlements"))
		return
	}

	log.Info("entitlements listed",
		slog.String("owner_uid", ownerUID),
		slog.Int("count", len(entitlements)))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"list_count":   len(entitlements),
		"entitlements": entitlements,
	}))
}
