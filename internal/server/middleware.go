package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	accountdomain "github.com/smallbiznis/merchline/internal/account/domain"
	"github.com/smallbiznis/merchline/internal/orgcontext"
	"github.com/smallbiznis/merchline/pkg/log/ctxlogger"
	"github.com/smallbiznis/merchline/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

const (
	headerRequestID = "X-Request-Id"
	contextActorKey = "actor"
)

// actorClaims is the bearer token payload. sub carries the user id.
type actorClaims struct {
	Role      string `json:"role"`
	CompanyID string `json:"company_id,omitempty"`
	jwt.RegisteredClaims
}

// CorrelationID propagates or mints the correlation and request ids.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := correlation.ContextWithCorrelationID(c.Request.Context(), strings.TrimSpace(c.GetHeader(correlation.HeaderName)))
		ctx, cid := correlation.EnsureCorrelationID(ctx)
		c.Header(correlation.HeaderName, cid)

		requestID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(headerRequestID, requestID)

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequestLogger writes one structured line per request.
func RequestLogger(base *zap.Logger, debug bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", c.GetString("request_id")),
		}
		if actor, ok := orgcontext.UserFromContext(c.Request.Context()); ok {
			fields = append(fields, zap.String("user_id", actor.ID.String()), zap.String("role", string(actor.Role)))
		}
		if companyID, ok := orgcontext.CompanyIDFromContext(c.Request.Context()); ok {
			fields = append(fields, zap.String("company_id", companyID.String()))
		}
		if lastErr := c.Errors.Last(); lastErr != nil {
			errorType, errorCode := classifyErrorForLog(lastErr.Err)
			fields = append(fields,
				zap.String("error_type", errorType),
				zap.String("error_code", errorCode),
			)
			if debug && status >= http.StatusInternalServerError {
				fields = append(fields, zap.Error(lastErr.Err))
			}
		}

		log := ctxlogger.WithContext(c.Request.Context(), base)
		switch {
		case route == "/metrics" || route == "/health":
			log.Debug("http_request", fields...)
		case status >= http.StatusInternalServerError:
			log.Error("http_request", fields...)
		default:
			log.Info("http_request", fields...)
		}
	}
}

// ActorRequired authenticates the bearer token and loads the actor it names.
func (s *Server) ActorRequired() gin.HandlerFunc {
	secret := []byte(s.cfg.AuthJWTSecret)
	return func(c *gin.Context) {
		if len(secret) == 0 {
			s.log.Error("AUTH_JWT_SECRET is not configured")
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		var claims actorClaims
		_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (interface{}, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		actor, err := s.actorFromClaims(c, claims)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextActorKey, actor)
		c.Request = c.Request.WithContext(orgcontext.WithUser(c.Request.Context(), actor))
		c.Next()
	}
}

// actorFromClaims trusts the stored user over the token so revoked roles take effect
// before the token expires.
func (s *Server) actorFromClaims(c *gin.Context, claims actorClaims) (accountdomain.User, error) {
	userID, err := snowflake.ParseString(strings.TrimSpace(claims.Subject))
	if err != nil || userID == 0 {
		return accountdomain.User{}, ErrUnauthorized
	}

	user, err := s.accountSvc.GetUser(c.Request.Context(), userID)
	if err != nil {
		return accountdomain.User{}, ErrUnauthorized
	}
	if claims.Role != "" && accountdomain.Role(claims.Role) != user.Role {
		return accountdomain.User{}, ErrUnauthorized
	}
	if claims.CompanyID != "" {
		companyID, err := snowflake.ParseString(claims.CompanyID)
		if err != nil || !user.BelongsTo(companyID) {
			return accountdomain.User{}, ErrUnauthorized
		}
	}
	return user, nil
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

func actorFromContext(c *gin.Context) (accountdomain.User, bool) {
	value, ok := c.Get(contextActorKey)
	if !ok {
		return accountdomain.User{}, false
	}
	actor, ok := value.(accountdomain.User)
	return actor, ok
}

func requireActor(c *gin.Context) (accountdomain.User, bool) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return accountdomain.User{}, false
	}
	return actor, true
}
