// Package middlewarectx содержит middleware для HTTP‑сервера: проверку
// сервисного токена сотрудничающих сервисов и ограничение частоты запросов.
package middlewarectx

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/listing-entitlements/internal/http/response"
)

// ServiceTokenMiddleware возвращает middleware, которое проверяет общий
// сервисный токен в заголовке Authorization. Вызывающие стороны — внутренние
// сервисы (приём объявлений, отрисовка), а не конечные пользователи:
// аутентификация пользователей выполняется за пределами этого сервиса.
func ServiceTokenMiddleware(token string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.ServiceTokenMiddleware"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Error("missing or invalid authorization header")
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}
			got := strings.TrimPrefix(authHeader, "Bearer ")

			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				log.Error("invalid service token")
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid service token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
