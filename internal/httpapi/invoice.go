package httpapi

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"

	"gomhangpro/backend/internal/domain"
	"gomhangpro/backend/internal/report"
)

// invoiceTmpl renders the printable customer invoice. html/template
// escapes every user-controlled field.
var invoiceTmpl = template.Must(template.New("invoice").Parse(`<!doctype html>
<html lang="vi">
<head>
  <meta charset="utf-8" />
  <title>Hóa đơn {{.Order.ID}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; max-width: 420px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    td { padding: 4px 0; font-size: 14px; }
    td.amount { text-align: right; }
    tr.total td { border-top: 1px solid #333; font-weight: bold; padding-top: 8px; }
    h2 { margin-bottom: 2px; }
    .meta { color: #555; font-size: 13px; }
  </style>
</head>
<body>
  <h2>Gom Hàng Pro</h2>
  <p class="meta">Hóa đơn {{.Order.ID}}<br/>
  Ngày: {{.Order.CreatedAt.Format "02/01/2006 15:04"}}<br/>
  Khách: {{.CustomerName}} — Sạp: {{.CounterName}}</p>
  <table>
    <tr><td>Tiền hàng</td><td class="amount">{{.GoodsCost}}đ</td></tr>
    <tr><td>Tiền công gom</td><td class="amount">{{.ServiceFee}}đ</td></tr>
    <tr><td>Phí đóng hàng</td><td class="amount">{{.PackingFee}}đ</td></tr>
    <tr><td>Tiền hoa hồng</td><td class="amount">{{.Commission}}đ</td></tr>
    {{if .Order.Extra}}<tr><td>Tiền thêm{{if .Order.ExtraNote}} ({{.Order.ExtraNote}}){{end}}</td><td class="amount">{{.Extra}}đ</td></tr>{{end}}
    <tr class="total"><td>Tổng tiền hóa đơn</td><td class="amount">{{.Total}}đ</td></tr>
  </table>
  <p class="meta">Trạng thái: {{.Order.Status}}</p>
</body>
</html>
`))

type invoiceData struct {
	Order        domain.Order
	CustomerName string
	CounterName  string
	GoodsCost    string
	ServiceFee   string
	PackingFee   string
	Commission   string
	Extra        string
	Total        string
}

// formatVND groups digits in threes, the usual Vietnamese rendering.
func formatVND(amount int64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}
	digits := fmt.Sprintf("%d", amount)
	var parts []string
	for len(digits) > 3 {
		parts = append([]string{digits[len(digits)-3:]}, parts...)
		digits = digits[:len(digits)-3]
	}
	parts = append([]string{digits}, parts...)
	out := strings.Join(parts, ".")
	if negative {
		return "-" + out
	}
	return out
}

func (a *API) handleOrderInvoice(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	customerName := order.CustomerID
	if customer, err := a.service.GetCustomer(r.Context(), order.CustomerID); err == nil {
		customerName = customer.Name
	}
	counterName := order.CounterID
	if counter, err := a.service.GetCounter(r.Context(), order.CounterID); err == nil {
		counterName = counter.Name
	}

	data := invoiceData{
		Order:        order,
		CustomerName: customerName,
		CounterName:  counterName,
		GoodsCost:    formatVND(order.GoodsCost),
		ServiceFee:   formatVND(order.ServiceFee),
		PackingFee:   formatVND(order.PackingFee),
		Commission:   formatVND(order.Commission),
		Extra:        formatVND(order.Extra),
		Total:        formatVND(order.Total),
	}

	var buf bytes.Buffer
	if err := invoiceTmpl.Execute(&buf, data); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleOrderQR answers a PNG QR encoding the transfer reference for the
// order total, scannable from banking apps.
func (a *API) handleOrderQR(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	payload := fmt.Sprintf("GOMHANG|%s|%d|%s", order.ID, order.Total, order.CreatedAt.Format("2006-01-02"))
	png, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (a *API) handleShiftReport(w http.ResponseWriter, r *http.Request) {
	shiftReport, err := a.service.GetShiftReport(r.Context(),
		strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))) {
	case "", "json":
		writeJSON(w, http.StatusOK, shiftReport)
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=bao-cao-ca-%s.csv", shiftReport.Date))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(report.ShiftReportCSV(shiftReport)))
	case "xlsx":
		f, err := report.ShiftReportXLSX(shiftReport)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=bao-cao-ca-%s.xlsx", shiftReport.Date))
		w.WriteHeader(http.StatusOK)
		if err := f.Write(w); err != nil {
			log.Printf("[httpapi] write xlsx report: %v", err)
		}
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown report format"))
	}
}
