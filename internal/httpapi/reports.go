package httpapi

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"otsopos/backend/internal/domain"
)

func (a *API) handleListTransactions(c *gin.Context) {
	from := strings.TrimSpace(c.Query("from"))
	to := strings.TrimSpace(c.Query("to"))
	sales, err := a.service.ListTransactions(c.Request.Context(), from, to)
	if err != nil {
		fail(c, err)
		return
	}

	if strings.EqualFold(strings.TrimSpace(c.Query("format")), "csv") {
		body, err := transactionsToCSV(sales)
		if err != nil {
			writeError(c, http.StatusInternalServerError, err)
			return
		}
		name := "transactions"
		if from != "" {
			name += "-" + from
		}
		if to != "" && to != from {
			name += "-" + to
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".csv"))
		c.Data(http.StatusOK, "text/csv; charset=utf-8", body)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": sales})
}

func (a *API) handleGetTransaction(c *gin.Context) {
	sale, err := a.service.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": sale})
}

// handleReceipt serves a stored sale's receipt as text (default), printable
// HTML, or raw ESC/POS bytes.
func (a *API) handleReceipt(c *gin.Context) {
	r, err := a.service.Receipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	switch strings.ToLower(strings.TrimSpace(c.Query("format"))) {
	case "html":
		page, err := r.HTML()
		if err != nil {
			writeError(c, http.StatusInternalServerError, err)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
	case "escpos":
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", r.TransactionNumber+".bin"))
		c.Data(http.StatusOK, "application/octet-stream", r.ESCPOS(a.opts.ReceiptWidth))
	case "json":
		c.JSON(http.StatusOK, gin.H{"receipt": r})
	default:
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(r.Text(a.opts.ReceiptWidth)))
	}
}

func transactionsToCSV(sales []domain.Sale) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{
		"transaction_number", "created_at", "operator", "payment_type",
		"subtotal", "discount", "total", "cash_portion", "gcash_amount",
		"gcash_reference", "change", "items",
	})
	for _, s := range sales {
		items := 0
		for _, line := range s.Lines {
			items += line.Quantity
		}
		_ = w.Write([]string{
			s.TransactionNumber,
			s.CreatedAt.Format("2006-01-02 15:04:05"),
			s.OperatorName,
			s.PaymentType,
			s.Subtotal.StringFixed(2),
			s.DiscountTotal.StringFixed(2),
			s.TotalAmount.StringFixed(2),
			s.CashPortion.StringFixed(2),
			s.GCashAmount.StringFixed(2),
			s.GCashReference,
			s.ChangeDue.StringFixed(2),
			strconv.Itoa(items),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (a *API) handleListExpenses(c *gin.Context) {
	out, err := a.service.ListExpenses(c.Request.Context(), parsePositiveLimit(c.Query("limit"), 100, 500))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expenses": out})
}

func (a *API) handleCreateExpense(c *gin.Context) {
	var req domain.Expense
	if !bindJSON(c, &req) {
		return
	}
	req.ID = ""
	expense, err := a.service.CreateExpense(c.Request.Context(), operator(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"expense": expense})
}

func (a *API) handleUpdateExpense(c *gin.Context) {
	var req domain.Expense
	if !bindJSON(c, &req) {
		return
	}
	req.ID = c.Param("id")
	expense, err := a.service.UpdateExpense(c.Request.Context(), operator(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expense": expense})
}

func (a *API) handleDeleteExpense(c *gin.Context) {
	if err := a.service.DeleteExpense(c.Request.Context(), operator(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *API) handleListUsers(c *gin.Context) {
	users, err := a.service.ListUsers(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (a *API) handleCreateUser(c *gin.Context) {
	var req domain.UserRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := a.service.CreateUser(c.Request.Context(), operator(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

func (a *API) handleUpdateUser(c *gin.Context) {
	var req domain.UserRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := a.service.UpdateUser(c.Request.Context(), operator(c), c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (a *API) handleDeleteUser(c *gin.Context) {
	if err := a.service.DeleteUser(c.Request.Context(), operator(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *API) handleActivityLogs(c *gin.Context) {
	logs, err := a.service.ActivityLogs(c.Request.Context(), c.Query("date"), parsePositiveLimit(c.Query("limit"), 200, 1000))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func (a *API) handleDashboard(c *gin.Context) {
	d, err := a.service.Dashboard(c.Request.Context(), c.Query("date"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dashboard": d, "storeName": a.service.StoreName()})
}
