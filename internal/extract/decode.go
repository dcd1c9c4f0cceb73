package extract

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tradedocs-cli/internal/model"
)

// decodeMetadata maps the metadata-call object into an InvoiceRecord. Field
// extraction is tolerant: missing keys become zero values, and numeric
// fields are coerced so a model emitting "1,250.00" does not fail the run.
// The object's own lineItems are deliberately ignored; the line-items call
// is the only source for the table.
func decodeMetadata(v any) (*model.InvoiceRecord, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, eris.Errorf("extract: metadata response is %T, expected an object", v)
	}

	rec := &model.InvoiceRecord{
		InvoiceNumber:    model.CoerceString(m["invoiceNumber"]),
		InvoiceDate:      model.CoerceString(m["invoiceDate"]),
		Currency:         model.CoerceString(m["currency"]),
		Incoterm:         model.CoerceString(m["incoterm"]),
		Shipper:          decodeParty(m["shipper"]),
		Consignee:        decodeParty(m["consignee"]),
		PortOfLoading:    model.CoerceString(m["portOfLoading"]),
		PortOfDischarge:  model.CoerceString(m["portOfDischarge"]),
		CountryOfOrigin:  model.CoerceString(m["countryOfOrigin"]),
		PaymentTerms:     model.CoerceString(m["paymentTerms"]),
		TotalAmount:      model.CoerceFloat(m["totalAmount"]),
		TotalNetWeight:   model.CoerceFloat(m["totalNetWeight"]),
		TotalGrossWeight: model.CoerceFloat(m["totalGrossWeight"]),
		PackageCount:     model.CoerceFloat(m["packageCount"]),
		LineItems:        []model.LineItem{},
	}
	return rec, nil
}

func decodeParty(v any) model.Party {
	m, ok := v.(map[string]any)
	if !ok {
		return model.Party{}
	}
	return model.Party{
		Name:    model.CoerceString(m["name"]),
		Address: model.CoerceString(m["address"]),
		Country: model.CoerceString(m["country"]),
	}
}

// decodeLineItems decodes the minified positional encoding. The expected
// shape is an array of arrays in LineItemColumnsV1 order; a legacy response
// that is already an object with a lineItems property is tolerated. Rows
// that are objects instead of arrays are decoded by key.
func decodeLineItems(v any) ([]model.LineItem, error) {
	if m, ok := v.(map[string]any); ok {
		inner, ok := m["lineItems"]
		if !ok {
			return nil, eris.New("extract: line-items object has no lineItems property")
		}
		v = inner
	}

	rows, ok := v.([]any)
	if !ok {
		return nil, eris.Errorf("extract: line-items response is %T, expected an array", v)
	}

	items := make([]model.LineItem, 0, len(rows))
	for i, row := range rows {
		switch r := row.(type) {
		case []any:
			items = append(items, decodePositionalRow(r, i))
		case map[string]any:
			items = append(items, decodeObjectRow(r))
		default:
			zap.L().Warn("extract: skipping malformed line-item row",
				zap.Int("row", i),
			)
		}
	}
	return items, nil
}

// decodePositionalRow maps one inner array by the shared column contract.
func decodePositionalRow(row []any, idx int) model.LineItem {
	cell := func(col int) any {
		if col >= len(row) {
			return nil
		}
		return row[col]
	}

	if len(row) != len(LineItemColumnsV1) {
		zap.L().Warn("extract: line-item row width differs from column contract",
			zap.Int("row", idx),
			zap.Int("got", len(row)),
			zap.Int("want", len(LineItemColumnsV1)),
		)
	}

	var li model.LineItem
	for col, name := range LineItemColumnsV1 {
		switch name {
		case "description":
			li.Description = model.CoerceString(cell(col))
		case "hsCode":
			li.HSCode = model.CoerceString(cell(col))
		case "originCountry":
			li.OriginCountry = model.CoerceString(cell(col))
		case "quantity":
			li.Quantity = model.CoerceFloat(cell(col))
		case "unit":
			li.Unit = model.CoerceString(cell(col))
		case "unitPrice":
			li.UnitPrice = model.CoerceFloat(cell(col))
		case "amount":
			li.Amount = model.CoerceFloat(cell(col))
		case "netWeight":
			li.NetWeight = model.CoerceFloat(cell(col))
		case "grossWeight":
			li.GrossWeight = model.CoerceFloat(cell(col))
		}
	}
	return li
}

// decodeObjectRow handles the legacy object row shape.
func decodeObjectRow(m map[string]any) model.LineItem {
	return model.LineItem{
		Description:   model.CoerceString(m["description"]),
		HSCode:        model.CoerceString(m["hsCode"]),
		OriginCountry: model.CoerceString(m["originCountry"]),
		Quantity:      model.CoerceFloat(m["quantity"]),
		Unit:          model.CoerceString(m["unit"]),
		UnitPrice:     model.CoerceFloat(m["unitPrice"]),
		Amount:        model.CoerceFloat(m["amount"]),
		NetWeight:     model.CoerceFloat(m["netWeight"]),
		UnitNetWeight: model.CoerceFloat(m["unitNetWeight"]),
		GrossWeight:   model.CoerceFloat(m["grossWeight"]),
		Marks:         model.CoerceString(m["marks"]),
	}
}

// merge combines the two partial results: the metadata record's fields win
// for the header, and the decoded line-items array replaces whatever the
// metadata call returned for the table.
func merge(meta *model.InvoiceRecord, items []model.LineItem) *model.InvoiceRecord {
	rec := &model.InvoiceRecord{LineItems: []model.LineItem{}}
	if meta != nil {
		cp := *meta
		rec = &cp
	}
	rec.LineItems = items
	if rec.LineItems == nil {
		rec.LineItems = []model.LineItem{}
	}
	return rec
}
