package receipt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDMLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want LineItem
		ok   bool
	}{
		{
			name: "single item",
			line: "BaleaShampoo 2,45 1",
			want: LineItem{Name: "BaleaShampoo", Price: 2.45, Quantity: 1},
			ok:   true,
		},
		{
			name: "multiplied line divides price",
			line: "2x Shampoo 5,98 1",
			want: LineItem{Name: "Shampoo", Price: 2.99, Quantity: 2},
			ok:   true,
		},
		{
			name: "unit price inside name column is stripped",
			line: "3x Duschgel 1,15 3,45 1",
			want: LineItem{Name: "Duschgel", Price: 1.15, Quantity: 3},
			ok:   true,
		},
		{
			name: "non-product line",
			line: "dm-drogerie markt GmbH",
			ok:   false,
		},
		{
			name: "zero multiplier never divides",
			line: "0x Shampoo 2,45 1",
			ok:   false,
		},
		{
			name: "empty line",
			line: "",
			ok:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDMLine(tt.line)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want.Name, got.Name)
				assert.InDelta(t, tt.want.Price, got.Price, 0.001)
				assert.Equal(t, tt.want.Quantity, got.Quantity)
			}
		})
	}
}

func TestDMItemsRegion(t *testing.T) {
	text := "dm-drogerie markt\nFiliale 2143\nKassenbon\nBaleaShampoo 2,45 1\n2x Duschgel 3,98 1\nZwischensumme\nSUMME EUR\n6,43\n"

	items := DMItems(text)
	require.Len(t, items, 2)
	assert.Equal(t, "BaleaShampoo", items[0].Name)
	assert.Equal(t, 2, items[1].Quantity)
	assert.InDelta(t, 1.99, items[1].Price, 0.001)
}

func TestDMItemsWithoutTotalsMarker(t *testing.T) {
	// Without the marker the whole text is the candidate region; headers
	// and trailer still fall out of the slice bounds or fail the grammar.
	items := DMItems("a\nb\nc\nShampoo 2,45 1\nd\n")
	require.Len(t, items, 1)
	assert.Equal(t, "Shampoo", items[0].Name)
}

func TestParseRossmannLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want LineItem
		ok   bool
	}{
		{
			name: "plain item",
			line: "♥♥4305615123456♥♥IsanaShampoo♥♥€2,49",
			want: LineItem{Name: "IsanaShampoo", Price: 2.49, Quantity: 1, EAN: "4305615123456"},
			ok:   true,
		},
		{
			name: "quantity and discounted second price",
			line: "'♥2X♥♥4305615123456♥♥Duschgel♥Sport♥♥€3,98♥♥€2,99",
			want: LineItem{Name: "Duschgel Sport", Price: 2.99, Quantity: 2, EAN: "4305615123456"},
			ok:   true,
		},
		{
			name: "no hearts means no item",
			line: "ROSSMANN Dankt",
			ok:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRossmannLine(tt.line)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestRossmannItemsRegion(t *testing.T) {
	text := "ROSSMANN\nIhr Einkauf\n" + rossmannDelimiter + "\n" +
		"♥♥4305615123456♥♥Shampoo♥♥€2,49\n" +
		"♥♥4305615999999♥♥Zahnpasta♥♥€1,25\n" +
		rossmannDelimiter + "\nSUMME €3,74\n"

	items := RossmannItems(text)
	require.Len(t, items, 2)
	assert.Equal(t, "4305615123456", items[0].EAN)
	assert.Equal(t, "Zahnpasta", items[1].Name)
}

func TestRossmannItemsWithoutDelimiter(t *testing.T) {
	assert.Nil(t, RossmannItems("no delimiters here"))
}
