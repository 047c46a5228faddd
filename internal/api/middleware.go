package api

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/DurbeKK/maid-tg-bot/internal/auth"
	"github.com/DurbeKK/maid-tg-bot/pkg/logger"
)

const (
	loggerKey = "logger"
	claimsKey = "claims"
)

func ZapLoggerMiddleware(l *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			req := c.Request()
			res := c.Response()

			requestID := res.Header().Get(echo.HeaderXRequestID)

			reqLogger := l.With(
				zap.String("request_id", requestID),
			)

			c.Set(loggerKey, reqLogger)

			ctx := logger.WithLogger(req.Context(), reqLogger)
			c.SetRequest(req.WithContext(ctx))

			err := next(c)

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.String("remote_ip", c.RealIP()),
				zap.Int("status", res.Status),
				zap.Duration("latency", time.Since(start)),
				zap.Int64("bytes_in", req.ContentLength),
				zap.Int64("bytes_out", res.Size),
			}

			if err != nil {
				fields = append(fields, zap.Error(err))
				reqLogger.Error("request failed", fields...)
			} else {
				reqLogger.Info("request completed", fields...)
			}

			return err
		}
	}
}

func GetLoggerFromContext(c echo.Context) *zap.Logger {
	if l, ok := c.Get(loggerKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// AuthMiddleware accepts bearer tokens of the given types and exposes the
// claims through ClaimsFromContext.
func AuthMiddleware(types ...auth.TokenType) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return c.JSON(http.StatusUnauthorized, errorBody("UNAUTHORIZED", "missing bearer token"))
			}

			claims, err := auth.VerifyToken(token)
			if err != nil {
				GetLoggerFromContext(c).Debug("token rejected", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, errorBody("UNAUTHORIZED", "invalid token"))
			}

			if !slices.Contains(types, claims.Type) {
				return c.JSON(http.StatusForbidden, errorBody("FORBIDDEN", "token type not allowed"))
			}

			c.Set(claimsKey, claims)

			l := GetLoggerFromContext(c).With(zap.String("user_id", claims.UserID()))
			c.Set(loggerKey, l)
			c.SetRequest(c.Request().WithContext(logger.WithLogger(c.Request().Context(), l)))

			return next(c)
		}
	}
}

func ClaimsFromContext(c echo.Context) *auth.TokenClaims {
	if claims, ok := c.Get(claimsKey).(*auth.TokenClaims); ok {
		return claims
	}
	return nil
}
