package httpapi

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"otsopos/backend/internal/auth"
	"otsopos/backend/internal/domain"
	"otsopos/backend/internal/service"
	"otsopos/backend/internal/session"
)

type Options struct {
	AllowedOrigin string
	ReceiptWidth  int
}

type API struct {
	service      *service.Service
	auth         *auth.Manager
	sessions     *session.Manager
	opts         Options
	loginLimiter *attemptLimiter
	pinLimiter   *attemptLimiter
	engine       *gin.Engine
}

func New(svc *service.Service, authMgr *auth.Manager, sessions *session.Manager, opts Options) *API {
	if opts.ReceiptWidth < 24 {
		opts.ReceiptWidth = 32
	}
	a := &API{
		service:      svc,
		auth:         authMgr,
		sessions:     sessions,
		opts:         opts,
		loginLimiter: newAttemptLimiter(5, time.Minute),
		pinLimiter:   newAttemptLimiter(8, time.Minute),
	}
	a.engine = a.routes()
	return a
}

func (a *API) Handler() http.Handler {
	return a.engine
}

func (a *API) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), securityHeaders(), corsMiddleware(a.opts.AllowedOrigin))

	r.GET("/healthz", a.handleHealth)

	v1 := r.Group("/api/v1")
	v1.POST("/auth/login", a.handleLogin)

	api := v1.Group("", a.requireSession())
	api.POST("/auth/logout", a.handleLogout)
	api.POST("/auth/grants", a.handleRequestGrant)

	catalog := a.requireGrant(auth.ActionCatalogManage)
	api.GET("/products", a.handleListProducts)
	api.GET("/products/:id", a.handleGetProduct)
	api.POST("/products", catalog, a.handleCreateProduct)
	api.PUT("/products/:id", catalog, a.handleUpdateProduct)
	api.DELETE("/products/:id", catalog, a.handleDeleteProduct)
	api.GET("/categories", a.handleListCategories)
	api.POST("/categories", catalog, a.handleCreateCategory)
	api.PUT("/categories/:id", catalog, a.handleUpdateCategory)
	api.DELETE("/categories/:id", catalog, a.handleDeleteCategory)
	api.GET("/suppliers", a.handleListSuppliers)
	api.POST("/suppliers", catalog, a.handleCreateSupplier)
	api.PUT("/suppliers/:id", catalog, a.handleUpdateSupplier)
	api.DELETE("/suppliers/:id", catalog, a.handleDeleteSupplier)
	api.GET("/inventory", a.handleListInventory)
	api.PUT("/inventory/:productId", a.requireGrant(auth.ActionInventoryOverride), a.handleSetStock)

	void := a.requireGrant(auth.ActionCartVoid)
	api.GET("/cart", a.handleGetCart)
	api.POST("/cart/lines", a.handleAddLine)
	api.POST("/cart/lines/:lineId/increase", a.handleIncreaseLine)
	api.POST("/cart/lines/:lineId/decrease", a.handleDecreaseLine)
	api.PUT("/cart/lines/:lineId/discount", a.handleApplyDiscount)
	api.DELETE("/cart/lines/:lineId", void, a.handleRemoveLine)
	api.DELETE("/cart", void, a.handleClearCart)
	api.POST("/cart/settle", a.handleSettle)
	api.POST("/cart/suspend", a.requireGrant(auth.ActionSaleSuspend), a.handleSuspend)
	api.GET("/suspended", a.handleListSuspended)
	api.POST("/suspended/:id/resume", a.handleResume)

	api.GET("/shifts/current", a.handleCurrentShift)
	api.POST("/shifts/start", a.handleStartShift)
	api.POST("/shifts/cash-movements", a.handleCashMovement)
	api.POST("/shifts/end", a.requireGrant(auth.ActionShiftClose), a.handleEndShift)
	api.GET("/shifts", a.handleListShifts)
	api.GET("/shifts/:id/x-reading", a.handleXReading)
	api.GET("/shifts/:id/movements", a.handleListMovements)

	api.GET("/transactions", a.handleListTransactions)
	api.GET("/transactions/:id", a.handleGetTransaction)
	api.GET("/transactions/:id/receipt", a.handleReceipt)

	expense := a.requireGrant(auth.ActionExpenseManage)
	api.GET("/expenses", a.handleListExpenses)
	api.POST("/expenses", expense, a.handleCreateExpense)
	api.PUT("/expenses/:id", expense, a.handleUpdateExpense)
	api.DELETE("/expenses/:id", expense, a.handleDeleteExpense)

	users := api.Group("/users", a.requireGrant(auth.ActionUserManage))
	users.GET("", a.handleListUsers)
	users.POST("", a.handleCreateUser)
	users.PUT("/:id", a.handleUpdateUser)
	users.DELETE("/:id", a.handleDeleteUser)

	api.GET("/activity-logs", a.requireGrant(auth.ActionActivityView), a.handleActivityLogs)
	api.GET("/dashboard", a.handleDashboard)

	return r
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"at":       time.Now().UTC().Format(time.RFC3339),
		"sessions": a.sessions.Count(),
	})
}

// statusFor maps the error taxonomy onto HTTP. Anything outside it is a
// server fault.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrEmptyCart):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrOutOfStock),
		errors.Is(err, domain.ErrStockLimitExceeded),
		errors.Is(err, domain.ErrCartNotEmpty),
		errors.Is(err, domain.ErrShiftAlreadyOpen),
		errors.Is(err, domain.ErrNoOpenShift),
		errors.Is(err, domain.ErrDuplicateEmail),
		errors.Is(err, domain.ErrDuplicateKey):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	writeError(c, statusFor(err), err)
}

func writeError(c *gin.Context, status int, err error) {
	// 5xx bodies are generic so store errors never reach the client.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	c.JSON(status, gin.H{"error": msg})
}

func bindJSON(c *gin.Context, dest any) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		writeError(c, http.StatusBadRequest, errors.New("invalid request body"))
		return false
	}
	return true
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}
