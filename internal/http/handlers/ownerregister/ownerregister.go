// Package ownerregister реализует HTTP-обработчик регистрации владельца.
//
// Handler принимает JSON-запрос с UID владельца, валидирует его и выдаёт
// бесплатную квоту на одно размещение. Повторная регистрация возвращает
// уже выданную квоту.
package ownerregister

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/listing-entitlements/internal/http/response"
	"github.com/magabrotheeeer/listing-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/listing-entitlements/internal/models"
)

// Handler управляет HTTP-запросами на регистрацию владельца.
type Handler struct {
	log      *slog.Logger        // Логгер для записи информации и ошибок
	service  Service             // Сервис бизнес-логики регистрации
	validate *validator.Validate // Валидатор структуры входящих данных
}

// Service описывает интерфейс бизнес-логики регистрации владельца.
type Service interface {
	RegisterOwner(ctx context.Context, ownerUID string) (*models.Entitlement, error)
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
// @Summary Зарегистрировать владельца
// @Description Выдаёт новому владельцу бесплатную квоту на одно размещение. Идемпотентен.
// @Tags Owners
// @Accept  json
// @Produce  json
// @Param request body models.DummyOwnerRequest true "UID владельца"
// @Success 200 {object} map[string]any "Выданная квота"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /owners [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.ownerregister"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyOwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	log.Info("request body decoded", slog.Any("request", req))

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	entitlement, err := h.service.RegisterOwner(r.Context(), req.OwnerUID)
	if err != nil {
		log.Error("failed to register owner", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not register owner"))
		return
	}

	log.Info("owner registered",
		slog.String("owner_uid", req.OwnerUID),
		slog.Int64("entitlement_id", entitlement.ID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"entitlement_id":  entitlement.ID,
		"remaining_units": entitlement.RemainingUnits,
		"expires_at":      entitlement.ExpiresAt,
	}))
}
