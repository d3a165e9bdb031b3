// Package authorize реализует HTTP-обработчик авторизации создания объявления.
//
// Handler принимает JSON-запрос с UID владельца, валидирует его, вызывает
// бизнес-логику списания единицы квоты и возвращает решение в JSON-формате.
//
// В случае ошибок формируются соответствующие HTTP-ответы с описанием проблемы.
package authorize

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
	services "github.com/magabrotheeeer/listing-entitlements/internal/services/coordinator"
)

// Handler управляет HTTP-запросами на авторизацию создания объявления.
type Handler struct {
	log      *slog.Logger        // Логгер для записи информации и ошибок
	service  Service             // Сервис бизнес-логики авторизации
	validate *validator.Validate // Валидатор структуры входящих данных
}

// Service описывает интерфейс бизнес-логики авторизации создания объявления.
type Service interface {
	AuthorizeListingCreation(ctx context.Context, ownerUID string) (*services.Decision, error)
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
// @Summary Авторизовать создание объявления
// @Description Атомарно списывает одну единицу квоты владельца. Возвращает решение и ID квоты.
// @Tags Listings
// @Accept  json
// @Produce  json
// @Param request body models.DummyAuthorizeRequest true "UID владельца"
// @Success 200 {object} map[string]any "Решение об авторизации"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /listings/authorize [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.authorize"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyAuthorizeRequest
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

	decision, err := h.service.AuthorizeListingCreation(r.Context(), req.OwnerUID)
	if err != nil {
		log.Error("failed to authorize listing creation", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not authorize listing creation"))
		return
	}

	if !decision.Authorized {
		log.Info("listing creation denied", slog.String("owner_uid", req.OwnerUID))
		render.JSON(w, r, response.OKWithData(map[string]any{
			"authorized": false,
			"reason":     "purchase_required",
		}))
		return
	}

	log.Info("listing creation authorized",
		slog.String("owner_uid", req.OwnerUID),
		slog.Int64("entitlement_id", decision.EntitlementID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"authorized":     true,
		"entitlement_id": decision.EntitlementID,
	}))
}
