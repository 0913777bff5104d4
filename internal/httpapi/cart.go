package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"otsopos/backend/internal/auth"
	"otsopos/backend/internal/cart"
	"otsopos/backend/internal/domain"
	"otsopos/backend/internal/service"
)

type addLineRequest struct {
	ProductID string `json:"productId" binding:"required"`
}

type discountRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Kind   string          `json:"kind"`
}

func (a *API) handleGetCart(c *gin.Context) {
	var view domain.CartView
	_ = currentSession(c).WithCart(func(ct *cart.Cart) error {
		view = ct.View()
		return nil
	})
	c.JSON(http.StatusOK, gin.H{"cart": view})
}

// mutateCart runs fn against the session cart and answers with the line it
// produced plus the refreshed cart.
func (a *API) mutateCart(c *gin.Context, status int, fn func(*cart.Cart) (domain.CartLine, error)) {
	var line domain.CartLine
	var view domain.CartView
	err := currentSession(c).WithCart(func(ct *cart.Cart) error {
		var err error
		line, err = fn(ct)
		view = ct.View()
		return err
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(status, gin.H{"line": line, "cart": view})
}

func (a *API) handleAddLine(c *gin.Context) {
	var req addLineRequest
	if !bindJSON(c, &req) {
		return
	}
	a.mutateCart(c, http.StatusCreated, func(ct *cart.Cart) (domain.CartLine, error) {
		return a.service.AddToCart(c.Request.Context(), ct, strings.TrimSpace(req.ProductID))
	})
}

func (a *API) handleIncreaseLine(c *gin.Context) {
	a.mutateCart(c, http.StatusOK, func(ct *cart.Cart) (domain.CartLine, error) {
		return a.service.IncreaseLine(c.Request.Context(), ct, c.Param("lineId"))
	})
}

// handleDecreaseLine needs a void grant only when the decrease would drop
// the line.
func (a *API) handleDecreaseLine(c *gin.Context) {
	lineID := c.Param("lineId")
	var current domain.CartLine
	var found bool
	_ = currentSession(c).WithCart(func(ct *cart.Cart) error {
		current, found = ct.Line(lineID)
		return nil
	})
	if !found {
		writeError(c, http.StatusNotFound, errors.New("cart line not found"))
		return
	}
	if current.Quantity <= 1 {
		if err := a.consumeGrant(c, auth.ActionCartVoid); err != nil {
			fail(c, err)
			return
		}
	}
	a.mutateCart(c, http.StatusOK, func(ct *cart.Cart) (domain.CartLine, error) {
		line, _, err := a.service.DecreaseLine(c.Request.Context(), operator(c), ct, lineID)
		return line, err
	})
}

func (a *API) handleApplyDiscount(c *gin.Context) {
	var req discountRequest
	if !bindJSON(c, &req) {
		return
	}
	a.mutateCart(c, http.StatusOK, func(ct *cart.Cart) (domain.CartLine, error) {
		return a.service.ApplyDiscount(c.Request.Context(), operator(c), ct, c.Param("lineId"), req.Amount, strings.ToUpper(strings.TrimSpace(req.Kind)))
	})
}

func (a *API) handleRemoveLine(c *gin.Context) {
	a.mutateCart(c, http.StatusOK, func(ct *cart.Cart) (domain.CartLine, error) {
		return a.service.RemoveLine(c.Request.Context(), operator(c), ct, c.Param("lineId"))
	})
}

func (a *API) handleClearCart(c *gin.Context) {
	var view domain.CartView
	_ = currentSession(c).WithCart(func(ct *cart.Cart) error {
		a.service.ClearCart(c.Request.Context(), operator(c), ct)
		view = ct.View()
		return nil
	})
	c.JSON(http.StatusOK, gin.H{"cart": view})
}

func (a *API) handleSettle(c *gin.Context) {
	var req service.SettleRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	}
	req.Tender.Kind = normalizeTender(req.Tender.Kind)

	var result service.Settlement
	err := currentSession(c).WithCart(func(ct *cart.Cart) error {
		var err error
		result, err = a.service.Settle(c.Request.Context(), operator(c), ct, req)
		return err
	})
	if err != nil {
		fail(c, err)
		return
	}

	body := gin.H{
		"sale":      result.Sale,
		"breakdown": result.Breakdown,
		"duplicate": result.Duplicate,
		"receipt":   result.Receipt.Text(a.opts.ReceiptWidth),
	}
	if result.Duplicate {
		c.JSON(http.StatusOK, body)
		return
	}
	body["ledgerUpdated"] = result.LedgerUpdated
	c.JSON(http.StatusCreated, body)
}

func (a *API) handleSuspend(c *gin.Context) {
	var parked domain.SuspendedSale
	err := currentSession(c).WithCart(func(ct *cart.Cart) error {
		var err error
		parked, err = a.service.Suspend(c.Request.Context(), operator(c), ct)
		return err
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"suspended": parked})
}

func (a *API) handleListSuspended(c *gin.Context) {
	list, err := a.service.ListSuspended(c.Request.Context(), parsePositiveLimit(c.Query("limit"), 50, 200))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suspended": list})
}

// handleResume loads a parked sale into the session cart. The emptiness
// check and the load happen under one cart lock.
func (a *API) handleResume(c *gin.Context) {
	var view domain.CartView
	err := currentSession(c).WithCart(func(ct *cart.Cart) error {
		if _, err := a.service.Resume(c.Request.Context(), operator(c), c.Param("id"), ct); err != nil {
			return err
		}
		view = ct.View()
		return nil
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart": view})
}

func normalizeTender(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "cash":
		return domain.TenderCash
	case "gcash":
		return domain.TenderGCash
	case "split":
		return domain.TenderSplit
	}
	return kind
}
