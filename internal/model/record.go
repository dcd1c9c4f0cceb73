// Package model defines the domain types shared across the extraction pipeline.
package model

import "strconv"

// InvoiceRecord is the merged output of an extraction run: header fields from
// the metadata call plus the line-item table from the line-items call.
type InvoiceRecord struct {
	InvoiceNumber string `json:"invoiceNumber"`
	InvoiceDate   string `json:"invoiceDate"`
	Currency      string `json:"currency"`
	Incoterm      string `json:"incoterm"`

	Shipper   Party `json:"shipper"`
	Consignee Party `json:"consignee"`

	PortOfLoading   string `json:"portOfLoading"`
	PortOfDischarge string `json:"portOfDischarge"`
	CountryOfOrigin string `json:"countryOfOrigin"`
	PaymentTerms    string `json:"paymentTerms"`

	TotalAmount      float64 `json:"totalAmount"`
	TotalNetWeight   float64 `json:"totalNetWeight"`
	TotalGrossWeight float64 `json:"totalGrossWeight"`
	PackageCount     float64 `json:"packageCount"`

	LineItems []LineItem `json:"lineItems"`
}

// Party identifies a shipper or consignee on the document.
type Party struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Country string `json:"country"`
}

// LineItem is one row of the product table.
type LineItem struct {
	Description   string  `json:"description"`
	HSCode        string  `json:"hsCode"`
	OriginCountry string  `json:"originCountry"`
	Quantity      float64 `json:"quantity"`
	Unit          string  `json:"unit"`
	UnitPrice     float64 `json:"unitPrice"`
	Amount        float64 `json:"amount"`
	NetWeight     float64 `json:"netWeight"`
	UnitNetWeight float64 `json:"unitNetWeight"`
	GrossWeight   float64 `json:"grossWeight"`
	Marks         string  `json:"marks"`
}

// Normalize derives missing weight fields and is idempotent. If a total net
// weight and a positive quantity are present, the unit net weight is total
// divided by quantity; otherwise, if a unit net weight and quantity are
// present, the total is unit times quantity.
func (li *LineItem) Normalize() {
	if li.NetWeight > 0 && li.Quantity > 0 && li.UnitNetWeight == 0 {
		li.UnitNetWeight = li.NetWeight / li.Quantity
	} else if li.UnitNetWeight > 0 && li.Quantity > 0 && li.NetWeight == 0 {
		li.NetWeight = li.UnitNetWeight * li.Quantity
	}
}

// Normalize normalizes every line item in place.
func (r *InvoiceRecord) Normalize() {
	for i := range r.LineItems {
		r.LineItems[i].Normalize()
	}
}

// FilePart is one uploaded document part handed to the orchestrator.
type FilePart struct {
	Data      []byte `json:"-"`
	MediaType string `json:"mediaType"`
	Filename  string `json:"filename"`
}

// CoerceFloat converts a decoded JSON value to float64, defaulting to 0 when
// the value is absent or unparseable. Strings with thousands separators are
// common in scanned invoices, so commas are tolerated.
func CoerceFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		cleaned := make([]byte, 0, len(n))
		for i := 0; i < len(n); i++ {
			if n[i] != ',' && n[i] != ' ' {
				cleaned = append(cleaned, n[i])
			}
		}
		f, err := strconv.ParseFloat(string(cleaned), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// CoerceString converts a decoded JSON value to a string, defaulting to "".
func CoerceString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}
