package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shelfwatch/shelfwatch/internal/server"
	"github.com/shelfwatch/shelfwatch/pkg/receipt"
)

var receiptCmd = &cobra.Command{
	Use:   "receipt <brand> <file.pdf>",
	Short: "Turn a PDF till receipt into inventory items",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		brand, path := args[0], args[1]

		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		text, err := receipt.ExtractText(bytes.NewReader(raw), int64(len(raw)))
		if err != nil {
			return err
		}

		e, err := buildEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		items, err := server.MatchReceipt(cmd.Context(), brand, text, e.matchers, e.chain)
		if err != nil {
			return err
		}
		if items == nil {
			return fmt.Errorf("receipts are not supported for %q", brand)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	},
}

func init() {
	rootCmd.AddCommand(receiptCmd)
}
