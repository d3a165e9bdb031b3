// Package purchasewebhook реализует HTTP-обработчик уведомлений платёжного шлюза.
//
// Handler проверяет HMAC-подпись тела запроса, разбирает событие завершённой
// покупки и передаёт его бизнес-логике. Повторная доставка одного и того же
// платежа безопасна: применение покупки идемпотентно по ID платежа.
package purchasewebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/listing-entitlements/internal/http/response"
	"github.com/magabrotheeeer/listing-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/listing-entitlements/internal/models"
	services "github.com/magabrotheeeer/listing-entitlements/internal/services/coordinator"
	"github.com/magabrotheeeer/listing-entitlements/internal/storage/repository"
)

// Service описывает интерфейс бизнес-логики применения покупки.
type Service interface {
	ApplyPurchase(ctx context.Context, event models.PurchaseCompleted) error
}

// Handler управляет уведомлениями платёжного шлюза о завершённых покупках.
type Handler struct {
	log           *slog.Logger        // Логгер для записи информации и ошибок
	service       Service             // Сервис бизнес-логики применения покупок
	validate      *validator.Validate // Валидатор структуры события
	webhookSecret string              // Секрет для проверки подписи
}

// New создает новый Handler с переданными логгером, сервисом и секретом подписи.
func New(log *slog.Logger, service Service, secret string) *Handler {
	return &Handler{
		log:           log,
		service:       service,
		validate:      validator.New(),
		webhookSecret: secret,
	}
}

// Проверка подписи webhook (X-Api-Signature).
func (h *Handler) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expectedSig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expectedSig), []byte(signature))
}

// ServeHTTP godoc
// @Summary Уведомление о завершённой покупке
// @Description Принимает подписанное событие платёжного шлюза и применяет покупку к квотам или выделениям.
// @Tags Purchases
// @Accept  json
// @Produce  json
// @Param request body models.PurchaseCompleted true "Событие завершённой покупки"
// @Success 200 {object} response.Response "Покупка применена"
// @Failure 400 {object} response.ErrorResponse "Некорректное тело или исход покупки"
// @Failure 401 {object} response.ErrorResponse "Неверная подпись"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /purchases/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.purchasewebhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	defer r.Body.Close()

	signature := r.Header.Get("X-Api-Signature")
	if signature == "" || !h.verifySignature(body, signature) {
		log.Error("invalid or missing webhook signature")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid signature"))
		return
	}

	var event models.PurchaseCompleted
	if err := json.Unmarshal(body, &event); err != nil {
		log.Error("failed to unmarshal webhook payload", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(event); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	if err := h.service.ApplyPurchase(r.Context(), event); err != nil {
		if errors.Is(err, services.ErrInvalidOutcome) ||
			errors.Is(err, models.ErrInvalidFeatureType) ||
			errors.Is(err, repository.ErrInvalidGrant) {
			log.Error("rejected purchase outcome", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid purchase outcome"))
			return
		}
		log.Error("failed to apply purchase", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not apply purchase"))
		return
	}

	log.Info("purchase applied",
		slog.String("payment_id", event.PaymentID),
		slog.String("owner_uid", event.OwnerUID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"payment_id": event.PaymentID,
	}))
}
