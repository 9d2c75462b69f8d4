package payment

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
)

const qrBaseURL = "https://qr.sepay.vn/img"

// BankAccount is the shop's receiving account.
type BankAccount struct {
	Number   string
	Name     string
	BankCode string
}

// Request is what the customer needs to pay an order by bank transfer.
type Request struct {
	ProviderURL   string `json:"qrDataURL"`
	AccountNumber string `json:"accountNumber"`
	AccountName   string `json:"accountName"`
	BankCode      string `json:"bankCode"`
	BankName      string `json:"bankName"`
	Amount        int64  `json:"amount"`
	Content       string `json:"content"`
	Description   string `json:"description"`
	OrderID       int64  `json:"invoiceId"`
}

// BuildPaymentRequest depends only on the order id, its total and the account.
func BuildPaymentRequest(o *orders.Order, acc BankAccount) Request {
	content := CanonicalMarker(o.ID)
	return Request{
		ProviderURL: fmt.Sprintf("%s?acc=%s&bank=%s&amount=%d&des=%s",
			qrBaseURL,
			url.QueryEscape(acc.Number),
			url.QueryEscape(acc.BankCode),
			o.TotalPrice,
			url.QueryEscape(content),
		),
		AccountNumber: acc.Number,
		AccountName:   acc.Name,
		BankCode:      acc.BankCode,
		BankName:      BankName(acc.BankCode),
		Amount:        o.TotalPrice,
		Content:       content,
		Description:   fmt.Sprintf("Payment for Order #%d", o.ID),
		OrderID:       o.ID,
	}
}

var bankNames = map[string]string{
	"MB":          "MB Bank (Quân Đội)",
	"MBB":         "MB Bank (Quân Đội)",
	"VCB":         "Vietcombank",
	"TCB":         "Techcombank",
	"TECHCOMBANK": "Techcombank",
	"VTB":         "VietinBank",
	"VIETINBANK":  "VietinBank",
	"ACB":         "ACB",
	"BIDV":        "BIDV",
	"AGRIBANK":    "Agribank",
	"ARB":         "Agribank",
	"SCB":         "Sacombank",
	"VPB":         "VPBank",
	"VPBANK":      "VPBank",
	"TPB":         "TPBank",
	"TPBANK":      "TPBank",
	"SHB":         "SHB",
	"SHBVN":       "SHB",
	"EIB":         "Eximbank",
	"EXIMBANK":    "Eximbank",
	"MSB":         "MSB",
	"OCB":         "OCB",
	"SEA":         "SeABank",
	"SEABANK":     "SeABank",
	"VIETBANK":    "VietBank",
	"VB":          "VietBank",
	"VIET":        "VietBank",
	"VAB":         "VietABank",
	"VIETABANK":   "VietABank",
	"NAB":         "NamABank",
	"NAMABANK":    "NamABank",
	"PGB":         "PG Bank",
	"PGBANK":      "PG Bank",
	"ABB":         "ABBANK",
	"ABBANK":      "ABBANK",
	"NCB":         "NCB",
	"NCBANK":      "NCB",
	"GPB":         "GP Bank",
	"KLB":         "Kiên Long Bank",
	"LPB":         "LienVietPostBank",
	"BAB":         "Bac A Bank",
	"CAKE":        "Cake by VPBank",
	"CAKE_BANK":   "Cake by VPBank",
	"UBANK":       "Ubank by VPBank",
	"WOO":         "Woori Bank",
	"WOORI":       "Woori Bank",
	"CIMB":        "CIMB Bank",
	"HSBC":        "HSBC Vietnam",
}

// BankName maps a bank code to its display name; unknown codes get a
// generic "<CODE> Bank".
func BankName(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if n, ok := bankNames[code]; ok {
		return n
	}
	return code + " Bank"
}
