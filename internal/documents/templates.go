package documents

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strconv"

	"github.com/odyssey-erp/odyssey-ledger/internal/invoicing"
	"github.com/odyssey-erp/odyssey-ledger/internal/warehouse"
)

//go:embed templates/*.html
var templateFS embed.FS

// Seller is the issuing company printed on every document.
type Seller struct {
	Name    string
	NIP     string
	Address string
}

type partyView struct {
	Name    string
	NIP     string
	Address string
}

type lineView struct {
	No         int
	Name       string
	Quantity   int
	PriceNet   string
	TaxRate    string
	TotalGross string
}

type parentView struct {
	Number   string
	IssuedAt string
	Buyer    partyView
	Lines    []lineView
}

type invoiceView struct {
	Title         string
	Number        string
	IssuedAt      string
	Seller        Seller
	Buyer         partyView
	Parent        *parentView
	Reason        string
	Lines         []lineView
	TotalNet      string
	TotalVAT      string
	TotalGross    string
	PaymentStatus string
	Cancelled     bool
}

type warehouseItemView struct {
	No       int
	Code     string
	Name     string
	Quantity int
	Location string
}

type warehouseView struct {
	Number          string
	IssuedAt        string
	InvoiceNumber   string
	InvoiceDate     string
	Status          string
	Seller          Seller
	BuyerName       string
	ShippingAddress string
	Items           []warehouseItemView
	TotalUnits      int
}

var paymentLabels = map[invoicing.PaymentStatus]string{
	invoicing.PaymentPending:   "oczekuje na płatność",
	invoicing.PaymentPaid:      "opłacona",
	invoicing.PaymentCancelled: "anulowana",
}

var warehouseLabels = map[warehouse.Status]string{
	warehouse.StatusNew:        "nowy",
	warehouse.StatusInProgress: "w realizacji",
	warehouse.StatusReleased:   "wydany",
	warehouse.StatusCancelled:  "anulowany",
}

func parseTemplates() (*template.Template, error) {
	funcs := template.FuncMap{
		"dict": func(pairs ...any) (map[string]any, error) {
			if len(pairs)%2 != 0 {
				return nil, errors.New("dict: odd number of arguments")
			}
			out := make(map[string]any, len(pairs)/2)
			for i := 0; i < len(pairs); i += 2 {
				key, ok := pairs[i].(string)
				if !ok {
					return nil, fmt.Errorf("dict: key %v is not a string", pairs[i])
				}
				out[key] = pairs[i+1]
			}
			return out, nil
		},
	}
	return template.New("documents").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
}

func linesOf(items []invoicing.Item) []lineView {
	out := make([]lineView, 0, len(items))
	for i, it := range items {
		out = append(out, lineView{
			No:         i + 1,
			Name:       it.ProductName,
			Quantity:   it.Quantity,
			PriceNet:   Money(it.PriceNet),
			TaxRate:    Rate(it.TaxRate),
			TotalGross: Money(it.TotalGross),
		})
	}
	return out
}

func partyOf(inv invoicing.Invoice) partyView {
	return partyView{Name: inv.BuyerName, NIP: inv.BuyerNIP, Address: inv.BuyerAddress}
}

func newInvoiceView(seller Seller, inv invoicing.Invoice, parent *invoicing.Invoice) invoiceView {
	v := invoiceView{
		Title:         "Faktura",
		Number:        inv.FullNumber,
		IssuedAt:      Date(inv.CreatedAt),
		Seller:        seller,
		Buyer:         partyOf(inv),
		Lines:         linesOf(inv.Items),
		TotalNet:      Money(inv.TotalNet),
		TotalVAT:      Money(inv.TotalVAT),
		TotalGross:    Money(inv.TotalGross),
		PaymentStatus: paymentLabels[inv.PaymentStatus],
		Cancelled:     inv.PaymentStatus == invoicing.PaymentCancelled,
	}
	if v.Number == "" {
		v.Number = invoicing.FullNumber(inv)
	}
	if inv.IsCorrection {
		v.Title = "FAKTURA KORYGUJĄCA"
		v.Reason = inv.CorrectionReason
	}
	if inv.IsCorrection && parent != nil {
		number := parent.FullNumber
		if number == "" {
			number = invoicing.FullNumber(*parent)
		}
		v.Parent = &parentView{
			Number:   number,
			IssuedAt: Date(parent.CreatedAt),
			Buyer:    partyOf(*parent),
			Lines:    linesOf(parent.Items),
		}
	}
	return v
}

// WarehouseNumber renders the printed number of a goods-issue note.
func WarehouseNumber(id int64) string {
	return "WZ-" + strconv.FormatInt(id, 10)
}

func newWarehouseView(seller Seller, doc warehouse.Document, invoiceNumber string) warehouseView {
	v := warehouseView{
		Number:          WarehouseNumber(doc.ID),
		IssuedAt:        Date(doc.CreatedAt),
		InvoiceNumber:   invoiceNumber,
		InvoiceDate:     Date(doc.InvoiceDate),
		Status:          warehouseLabels[doc.Status],
		Seller:          seller,
		BuyerName:       doc.BuyerName,
		ShippingAddress: doc.ShippingAddress,
	}
	for i, it := range doc.Items {
		v.Items = append(v.Items, warehouseItemView{
			No:       i + 1,
			Code:     it.ProductCode,
			Name:     it.ProductName,
			Quantity: it.Quantity,
			Location: it.Location,
		})
		v.TotalUnits += it.Quantity
	}
	return v
}

func execute(tpl *template.Template, name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("documents: execute %s: %w", name, err)
	}
	return buf.String(), nil
}
