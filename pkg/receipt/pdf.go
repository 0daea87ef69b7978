package receipt

import (
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractText renders a PDF into plain text, one visual row per line. Rows
// keep their top-to-bottom order so the line grammars see the receipt the
// way it prints.
func ExtractText(r io.ReaderAt, size int64) (string, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("reading pdf: %w", err)
	}

	var out strings.Builder
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("page %d: %w", pageIndex, err)
		}
		for _, row := range rows {
			for _, text := range row.Content {
				out.WriteString(text.S)
			}
			out.WriteByte('\n')
		}
		out.WriteByte('\n')
	}
	return out.String(), nil
}
