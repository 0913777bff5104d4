package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type startShiftRequest struct {
	OpeningCash decimal.Decimal `json:"openingCash"`
}

type cashMovementRequest struct {
	Direction string          `json:"direction" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
}

type endShiftRequest struct {
	ClosingCash decimal.Decimal `json:"closingCash"`
}

func (a *API) handleCurrentShift(c *gin.Context) {
	shift, ok, err := a.service.CurrentOpenShift(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"open": false, "shift": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"open": true, "shift": shift, "difference": shift.Difference()})
}

func (a *API) handleStartShift(c *gin.Context) {
	var req startShiftRequest
	if !bindJSON(c, &req) {
		return
	}
	shift, err := a.service.StartShift(c.Request.Context(), operator(c), req.OpeningCash)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"shift": shift})
}

func (a *API) handleCashMovement(c *gin.Context) {
	var req cashMovementRequest
	if !bindJSON(c, &req) {
		return
	}
	shift, err := a.service.RecordCashMovement(c.Request.Context(), operator(c), strings.ToUpper(strings.TrimSpace(req.Direction)), req.Amount, strings.TrimSpace(req.Reason))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shift": shift})
}

func (a *API) handleEndShift(c *gin.Context) {
	var req endShiftRequest
	if !bindJSON(c, &req) {
		return
	}
	z, err := a.service.EndShift(c.Request.Context(), operator(c), req.ClosingCash)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"zReading": z})
}

func (a *API) handleListShifts(c *gin.Context) {
	shifts, err := a.service.ListShifts(c.Request.Context(), parsePositiveLimit(c.Query("limit"), 30, 200))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shifts": shifts})
}

// handleXReading accepts "current" for the open shift.
func (a *API) handleXReading(c *gin.Context) {
	id := c.Param("id")
	if id == "current" {
		id = ""
	}
	x, err := a.service.XReading(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"xReading": x})
}

func (a *API) handleListMovements(c *gin.Context) {
	moves, err := a.service.ListCashMovements(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"movements": moves})
}
