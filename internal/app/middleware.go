package app

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Request headers read by the middleware stack.
const (
	HeaderActorID = "X-Actor-ID"
	HeaderAPIKey  = "X-API-Key"
)

// publicPrefixes bypass the API key: the PayU webhook authenticates by signature and health checks
// must work without credentials.
var publicPrefixes = []string{"/payu/", "/healthz", "/metrics"}

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the ledger middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	limit := 120
	apiKeyHash := ""
	if cfg.Config != nil {
		if cfg.Config.AppRequestTimeout > 0 {
			timeout = cfg.Config.AppRequestTimeout
		}
		if cfg.Config.RateLimitPerMinute > 0 {
			limit = cfg.Config.RateLimitPerMinute
		}
		apiKeyHash = cfg.Config.APIKeyHash
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(limit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
		RequestInfo,
		APIKey(apiKeyHash, cfg.Logger),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, func(next http.Handler) http.Handler {
			return cfg.Metrics.Middleware(next)
		})
	}
	return middlewares
}

// RequestInfo stores the actor id forwarded by the auth proxy, the client IP and the request id
// in the request context. A malformed actor id is rejected.
func RequestInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := shared.RequestInfo{
			IP:        clientIP(r.RemoteAddr),
			RequestID: middleware.GetReqID(r.Context()),
		}
		if raw := strings.TrimSpace(r.Header.Get(HeaderActorID)); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid "+HeaderActorID+" header")
				return
			}
			info.ActorID = id
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithRequestInfo(r.Context(), info)))
	})
}

func clientIP(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// APIKey checks the X-API-Key header against a bcrypt hash. An empty hash disables the check.
// Keys that matched once are remembered so bcrypt runs once per distinct key.
func APIKey(hash string, logger *slog.Logger) func(http.Handler) http.Handler {
	var verified sync.Map
	return func(next http.Handler) http.Handler {
		if hash == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range publicPrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			key := r.Header.Get(HeaderAPIKey)
			if key == "" {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			if _, ok := verified.Load(key); !ok {
				if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
					if logger != nil {
						logger.Warn("api key rejected", slog.String("path", r.URL.Path), slog.String("ip", clientIP(r.RemoteAddr)))
					}
					httpx.RespondError(w, shared.ErrUnauthorized)
					return
				}
				verified.Store(key, struct{}{})
			}
			next.ServeHTTP(w, r)
		})
	}
}
