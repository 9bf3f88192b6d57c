// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package livestock

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/bureau-foundation/shopkeep/lib/catalog"
	"github.com/bureau-foundation/shopkeep/lib/chat"
)

// Render produces the live stock message for a catalog snapshot. It
// is pure: the same products and time always give the same content.
func Render(products []catalog.Product, now time.Time) chat.Content {
	printer := message.NewPrinter(language.English)

	sorted := slices.Clone(products)
	slices.SortFunc(sorted, func(a, b catalog.Product) int {
		return cmp.Compare(a.Code, b.Code)
	})

	var builder strings.Builder
	builder.WriteString("## 🏪 Live Stock\n\n")
	if len(sorted) == 0 {
		builder.WriteString("No products available.\n")
	}
	for _, product := range sorted {
		stock := "**out of stock**"
		if product.Available > 0 {
			stock = printer.Sprintf("%d in stock", product.Available)
		}
		builder.WriteString(printer.Sprintf("- **%s** (`%s`): %d WL · %s\n",
			product.Name, product.Code, product.Price, stock))
	}
	builder.WriteString("\n_Last updated ")
	builder.WriteString(now.UTC().Format("2006-01-02 15:04:05"))
	builder.WriteString(" UTC_")

	return chat.Markdown(builder.String())
}
