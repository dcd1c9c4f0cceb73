package extract

import (
	"fmt"
	"strings"
)

// LineItemColumnsV1 is the versioned wire contract for the minified
// line-items encoding. The prompt renders this order and the decoder maps by
// the same slice, so the two cannot drift independently.
var LineItemColumnsV1 = []string{
	"description",
	"hsCode",
	"originCountry",
	"quantity",
	"unit",
	"unitPrice",
	"amount",
	"netWeight",
	"grossWeight",
}

const systemText = "You are a customs documentation analyst extracting structured data from commercial invoices and packing lists. Return only valid JSON, no prose, no markdown fences."

const metadataPrompt = `Extract the header, entity, and logistics fields from the attached document(s).

Return a single JSON object with exactly these fields:
{"invoiceNumber": string, "invoiceDate": string, "currency": string, "incoterm": string,
 "shipper": {"name": string, "address": string, "country": string},
 "consignee": {"name": string, "address": string, "country": string},
 "portOfLoading": string, "portOfDischarge": string, "countryOfOrigin": string,
 "paymentTerms": string, "totalAmount": number, "totalNetWeight": number,
 "totalGrossWeight": number, "packageCount": number, "lineItems": []}

Use "" for string fields not present on the document and 0 for numeric ones.
Do NOT extract the product table; always return "lineItems": [].`

const lineItemsPromptFmt = `Extract every row of the product table from the attached document(s).

Return a minified JSON array of arrays. Each inner array is one line item with
values in exactly this column order:
[%s]

Use null for missing string values and 0 for missing numeric values.
Return only the array, with no wrapper object and no markdown fences.`

// buildLineItemsPrompt renders the line-items instruction from the column
// contract.
func buildLineItemsPrompt() string {
	return fmt.Sprintf(lineItemsPromptFmt, strings.Join(LineItemColumnsV1, ", "))
}
