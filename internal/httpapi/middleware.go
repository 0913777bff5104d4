package httpapi

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"otsopos/backend/internal/domain"
	"otsopos/backend/internal/session"
)

const (
	ctxSession   = "session"
	ctxRequestID = "request_id"

	headerGrant   = "X-Authorization-Grant"
	maxBodyBytes  = 1 << 20
	limiterMaxAge = 10 * time.Minute
)

// attemptLimiter throttles login and PIN attempts per client. Each key gets
// max attempts per window, refilled evenly.
type attemptLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*limiterEntry
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{
		limit:    rate.Every(window / time.Duration(max)),
		burst:    max,
		limiters: make(map[string]*limiterEntry),
		now:      time.Now,
	}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.limiters[key]
	if !ok {
		l.sweep(now)
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// sweep forgets clients that have been idle long enough to be full again.
func (l *attemptLimiter) sweep(now time.Time) {
	cutoff := now.Add(-limiterMaxAge)
	for key, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
		}
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ctxRequestID, requestID)
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		short := requestID
		if len(short) > 8 {
			short = short[:8]
		}
		log.Printf("[%s] %s %s | %d | %v | %s", short, c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start), c.ClientIP())
		for _, e := range c.Errors {
			log.Printf("[%s] error: %v", short, e.Err)
		}
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Cross-Origin-Opener-Policy", "same-origin")

		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		}
		c.Next()
	}
}

func corsMiddleware(allowedOrigin string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID", headerGrant},
		ExposeHeaders: []string{"Content-Length", "Content-Type", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	origin := strings.TrimSpace(allowedOrigin)
	if origin == "" || origin == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = strings.Split(origin, ",")
		for i := range cfg.AllowOrigins {
			cfg.AllowOrigins[i] = strings.TrimSpace(cfg.AllowOrigins[i])
		}
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// requireSession resolves the bearer token to a live session. A valid token
// whose session was ended by logout is rejected.
func (a *API) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		authorization := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(c, http.StatusUnauthorized, errors.New("missing bearer token"))
			c.Abort()
			return
		}
		claims, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
		if err != nil {
			writeError(c, http.StatusUnauthorized, errors.New("invalid or expired token"))
			c.Abort()
			return
		}
		sess, ok := a.sessions.Get(claims.SessionID)
		if !ok {
			writeError(c, http.StatusUnauthorized, errors.New("session ended"))
			c.Abort()
			return
		}
		c.Set(ctxSession, sess)
		c.Next()
	}
}

// requireGrant consumes the single-use grant named by the
// X-Authorization-Grant header before a gated handler runs.
func (a *API) requireGrant(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := a.consumeGrant(c, action); err != nil {
			fail(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (a *API) consumeGrant(c *gin.Context, action string) error {
	_, err := a.auth.Execute(c.Request.Context(), currentSession(c).Operator, c.GetHeader(headerGrant), action)
	return err
}

func currentSession(c *gin.Context) *session.Session {
	v, ok := c.Get(ctxSession)
	if !ok {
		return nil
	}
	sess, _ := v.(*session.Session)
	return sess
}

func operator(c *gin.Context) domain.Operator {
	if sess := currentSession(c); sess != nil {
		return sess.Operator
	}
	return domain.Operator{}
}
