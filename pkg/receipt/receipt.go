// Package receipt turns PDF till receipts into inventory items. The pipeline
// is brand-specific at the edges (region detection, line grammar) and shared
// in the middle: sanitize the OCR-mangled product name, widen the price into
// a whole-euro search window, and pick the best catalog candidate by token
// similarity.
package receipt

// LineItem is one parsed receipt line before catalog matching. Price is the
// unit price; multi-quantity lines are already divided down. EAN is set only
// by grammars that print barcodes on the receipt.
type LineItem struct {
	Name     string
	Price    float64
	Quantity int
	EAN      string
}

// Item is the inventory-shaped output of receipt processing.
type Item struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Code     string `json:"code"`
	Type     string `json:"type"`
}
