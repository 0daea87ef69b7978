package receipt

import (
	"regexp"
	"strconv"
	"strings"
)

// The dm grammar: optional "Nx " multiplier, then name, total price and a
// trailing tax class digit. Multi-quantity lines print the total; the unit
// price is the total divided by the count.
var (
	dmQuantityRe = regexp.MustCompile(`^(\d+)x\s+`)
	dmLineRe     = regexp.MustCompile(`^(.+?)\s+(\d+,\d{2})\s+(\d+)$`)
)

// The Rossmann grammar. The PDF encodes column gaps as ♥ glyphs; lines carry
// the EAN, an optional "NX" multiplier and one or two prices (the second is
// the discounted one and wins).
var rossmannLineRe = regexp.MustCompile(`^(?:'?)♥(?:(?P<qty>\d+)X)?♥+(?P<ean>\d+)♥+(?P<name>.+?)♥+€(?P<price1>\d+,\d{2})(?:♥+€(?P<price2>\d+,\d{2}))?`)

var heartsRe = regexp.MustCompile(`♥+`)

// DMItems extracts the item lines of a dm receipt. Everything below the
// "SUMME EUR" total is ignored, as are the three header lines and the last
// line of the item region.
func DMItems(text string) []LineItem {
	above := strings.SplitN(text, "SUMME EUR", 2)[0]
	lines := strings.Split(above, "\n")
	if len(lines) < 4 {
		return nil
	}
	lines = lines[3 : len(lines)-1]

	var items []LineItem
	for _, line := range lines {
		if item, ok := ParseDMLine(line); ok {
			items = append(items, item)
		}
	}
	return items
}

// ParseDMLine parses one dm receipt line. Non-product lines (deposit notes,
// coupons, blank rows) simply fail the grammar.
func ParseDMLine(line string) (LineItem, bool) {
	quantity := 1
	rest := line
	if m := dmQuantityRe.FindStringSubmatch(line); m != nil {
		quantity, _ = strconv.Atoi(m[1])
		// A "0x" multiplier is garbage and would divide the price by zero.
		if quantity == 0 {
			return LineItem{}, false
		}
		rest = line[len(m[0]):]
	}

	m := dmLineRe.FindStringSubmatch(rest)
	if m == nil {
		return LineItem{}, false
	}

	name := strings.TrimSpace(m[1])
	price, err := strconv.ParseFloat(strings.Replace(m[2], ",", ".", 1), 64)
	if err != nil {
		return LineItem{}, false
	}

	if quantity != 1 {
		price = price / float64(quantity)
		// The unit price is often printed inside the name column; strip it.
		unit := strings.Replace(strconv.FormatFloat(price, 'f', -1, 64), ".", ",", 1)
		name = strings.TrimSpace(strings.ReplaceAll(name, unit, ""))
	}

	return LineItem{Name: name, Price: price, Quantity: quantity}, true
}

const rossmannDelimiter = "--------------------------------------------------------"

// RossmannItems extracts the item lines of a Rossmann receipt: the region
// between the first two dash delimiter rows.
func RossmannItems(text string) []LineItem {
	parts := strings.Split(text, rossmannDelimiter)
	if len(parts) < 2 {
		return nil
	}

	var items []LineItem
	for _, line := range strings.Split(parts[1], "\n") {
		if line == "" {
			continue
		}
		if item, ok := ParseRossmannLine(line); ok {
			items = append(items, item)
		}
	}
	return items
}

// ParseRossmannLine parses one Rossmann receipt line.
func ParseRossmannLine(line string) (LineItem, bool) {
	m := rossmannLineRe.FindStringSubmatch(line)
	if m == nil {
		return LineItem{}, false
	}

	groups := map[string]string{}
	for i, name := range rossmannLineRe.SubexpNames() {
		if name != "" {
			groups[name] = m[i]
		}
	}

	quantity := 1
	if groups["qty"] != "" {
		quantity, _ = strconv.Atoi(groups["qty"])
	}

	priceStr := groups["price1"]
	if groups["price2"] != "" {
		priceStr = groups["price2"]
	}
	price, err := strconv.ParseFloat(strings.Replace(priceStr, ",", ".", 1), 64)
	if err != nil {
		return LineItem{}, false
	}

	return LineItem{
		Name:     strings.TrimSpace(heartsRe.ReplaceAllString(groups["name"], " ")),
		Price:    price,
		Quantity: quantity,
		EAN:      groups["ean"],
	}, true
}
