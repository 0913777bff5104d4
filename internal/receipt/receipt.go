// Package receipt renders settled sales for the customer: plain text,
// HTML and ESC/POS bytes for a thermal printer.
package receipt

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"otsopos/backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

type Line struct {
	Name         string
	Quantity     int
	UnitPrice    decimal.Decimal
	Gross        decimal.Decimal
	Net          decimal.Decimal
	DiscountNote string
}

type Receipt struct {
	StoreName         string
	TransactionNumber string
	Cashier           string
	IssuedAt          time.Time
	Lines             []Line
	Subtotal          decimal.Decimal
	Discount          decimal.Decimal
	Total             decimal.Decimal
	Tender            string
	OpenDrawer        bool
}

// Build turns a persisted sale into its receipt payload.
func Build(sale domain.Sale, storeName string) Receipt {
	r := Receipt{
		StoreName:         storeName,
		TransactionNumber: sale.TransactionNumber,
		Cashier:           sale.OperatorName,
		IssuedAt:          sale.CreatedAt,
		Subtotal:          sale.Subtotal,
		Discount:          sale.DiscountTotal,
		Total:             sale.TotalAmount,
		Tender:            DescribeTender(sale),
		OpenDrawer:        sale.PaymentType != domain.TenderGCash,
		Lines:             make([]Line, 0, len(sale.Lines)),
	}
	if r.Cashier == "" {
		r.Cashier = "system"
	}
	for _, l := range sale.Lines {
		gross := l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
		line := Line{
			Name:      l.ProductName,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Gross:     gross,
			Net:       gross,
		}
		if l.Discount.IsPositive() {
			var off decimal.Decimal
			if l.DiscountKind == domain.DiscountPercent {
				off = gross.Mul(l.Discount).Div(hundred)
				line.DiscountNote = fmt.Sprintf("less %s%%", l.Discount.String())
			} else {
				off = l.Discount
				line.DiscountNote = "less " + peso(l.Discount)
			}
			line.Net = decimal.Max(decimal.Zero, gross.Sub(off))
		}
		r.Lines = append(r.Lines, line)
	}
	return r
}

// DescribeTender is the human-readable payment line.
func DescribeTender(sale domain.Sale) string {
	switch sale.PaymentType {
	case domain.TenderGCash:
		return fmt.Sprintf("GCash %s (Ref: %s)", peso(sale.GCashAmount), sale.GCashReference)
	case domain.TenderSplit:
		return fmt.Sprintf("Split: Cash %s + GCash %s (Ref: %s), Change %s",
			peso(sale.CashReceived), peso(sale.GCashAmount), sale.GCashReference, peso(sale.ChangeDue))
	default:
		return fmt.Sprintf("Cash %s, Change %s", peso(sale.CashReceived), peso(sale.ChangeDue))
	}
}

func (r Receipt) Text(width int) string {
	if width <= 0 {
		width = 32
	}
	var b strings.Builder
	line := func(s string) {
		b.WriteString(s)
		b.WriteByte('\n')
	}
	sep := strings.Repeat("-", width)

	line(center(r.StoreName, width))
	line(sep)
	line("TX: " + r.TransactionNumber)
	line("Cashier: " + r.Cashier)
	line("Date: " + r.IssuedAt.Format("2006-01-02 15:04:05"))
	line(sep)
	for _, l := range r.Lines {
		line(itemLine(l.Quantity, l.Name, l.Gross.StringFixed(2), width))
		line(fmt.Sprintf("  @ %s", l.UnitPrice.StringFixed(2)))
		if l.DiscountNote != "" {
			line(padBetween("  "+l.DiscountNote, l.Net.StringFixed(2), width))
		}
	}
	line(sep)
	line(padBetween("Subtotal", peso(r.Subtotal), width))
	line(padBetween("Discount", peso(r.Discount), width))
	line(padBetween("TOTAL", peso(r.Total), width))
	line(sep)
	line("Payment:")
	line(r.Tender)
	line(sep)
	line(center("THANK YOU!", width))
	return b.String()
}

var htmlTemplate = template.Must(template.New("receipt").Funcs(template.FuncMap{
	"peso":  peso,
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
}).Parse(`<html>
  <body style="width:384px;font-family:monospace;font-size:12px">
    <center><b>{{.StoreName}}</b><br/>------------------------------</center>
    <p>TX: {{.TransactionNumber}}<br/>Cashier: {{.Cashier}}<br/>{{.IssuedAt.Format "2006-01-02 15:04:05"}}</p>
    <table width="100%">
{{- range .Lines}}
      <tr>
        <td>{{.Name}}{{if .DiscountNote}}<br/><small>{{.DiscountNote}}</small>{{end}}</td>
        <td style="text-align:right">{{.Quantity}} x {{money .UnitPrice}}</td>
        <td style="text-align:right">{{money .Net}}</td>
      </tr>
{{- end}}
    </table>
    ------------------------------
    <p>Subtotal: {{peso .Subtotal}}</p>
    <p>Discount: {{peso .Discount}}</p>
    <p><b>TOTAL: {{peso .Total}}</b></p>
    ------------------------------
    <p>Payment:</p>
    <p>{{.Tender}}</p>
    ------------------------------
    <center>THANK YOU!</center>
  </body>
</html>
`))

func (r Receipt) HTML() (string, error) {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, r); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ESCPOS renders the receipt for a thermal printer. Sales that took cash
// end with a drawer-kick pulse.
func (r Receipt) ESCPOS(width int) []byte {
	d := newDocument(width)
	d.align(alignCenter).bold(true).text(r.StoreName).bold(false).align(alignLeft)
	d.separator()
	d.text("TX: " + r.TransactionNumber)
	d.text("Cashier: " + r.Cashier)
	d.text(r.IssuedAt.Format("2006-01-02 15:04"))
	d.separator()
	for _, l := range r.Lines {
		d.text(itemLine(l.Quantity, l.Name, l.Gross.StringFixed(2), d.width))
		if l.DiscountNote != "" {
			d.keyValue("  "+asciiPeso(l.DiscountNote), l.Net.StringFixed(2))
		}
	}
	d.separator()
	d.keyValue("Subtotal", "P"+r.Subtotal.StringFixed(2))
	d.keyValue("Discount", "P"+r.Discount.StringFixed(2))
	d.bold(true).keyValue("TOTAL", "P"+r.Total.StringFixed(2)).bold(false)
	d.separator()
	d.text(asciiPeso(r.Tender))
	d.align(alignCenter).text("THANK YOU!").align(alignLeft)
	d.feed(3).cut()
	if r.OpenDrawer {
		d.raw(drawerKick)
	}
	return d.bytes()
}

// Printer delivers a receipt to hardware or an export path. Failures are
// reported to the caller, which must not undo the sale because of them.
type Printer interface {
	Print(ctx context.Context, r Receipt) error
}

// LogPrinter writes the plain-text receipt to the process log.
type LogPrinter struct {
	Width int
}

func (p LogPrinter) Print(_ context.Context, r Receipt) error {
	log.Printf("[receipt] %s\n%s", r.TransactionNumber, r.Text(p.Width))
	return nil
}

func peso(d decimal.Decimal) string {
	return "₱" + d.StringFixed(2)
}

// asciiPeso swaps the peso sign for a letter the printer code page has.
func asciiPeso(s string) string {
	return strings.ReplaceAll(s, "₱", "P")
}

func center(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return strings.Repeat(" ", (width-n)/2) + s
}
