// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bureau-foundation/shopkeep/lib/catalog"
	"github.com/bureau-foundation/shopkeep/lib/chat"
	"github.com/bureau-foundation/shopkeep/lib/ledger"
	"github.com/bureau-foundation/shopkeep/lib/stockimport"
)

func (b *Bot) addProduct(ctx context.Context, request *request) error {
	if len(request.args) < 3 {
		return usagef("Missing arguments.")
	}
	price, err := strconv.ParseInt(request.args[2], 10, 64)
	if err != nil {
		return usagef("Price must be a whole number of WL, got %q.", request.args[2])
	}
	product, err := b.catalog.CreateProduct(ctx, catalog.Product{
		Code:        request.args[0],
		Name:        request.args[1],
		Price:       price,
		Description: strings.Join(request.args[3:], " "),
	}, request.sender.String())
	if errors.Is(err, catalog.ErrProductExists) {
		return rejectf("Product code `%s` already exists!", catalog.NormalizeCode(request.args[0]))
	}
	if err != nil {
		return err
	}

	var text strings.Builder
	fmt.Fprintf(&text, "### ✅ Product Added\n**Code:** %s\n**Name:** %s\n**Price:** %s WLs",
		product.Code, product.Name, ledger.FormatAmount(product.Price))
	if product.Description != "" {
		fmt.Fprintf(&text, "\n**Description:** %s", product.Description)
	}
	b.reply(ctx, chat.Markdown(text.String()))
	b.refreshCatalog(ctx)
	return nil
}

func (b *Bot) editProduct(ctx context.Context, request *request) error {
	if len(request.args) < 3 {
		return usagef("Missing arguments.")
	}
	code, field := request.args[0], request.args[1]
	value := strings.Join(request.args[2:], " ")
	product, err := b.catalog.UpdateProduct(ctx, code, field, value, request.sender.String())
	if errors.Is(err, catalog.ErrNotFound) {
		return productNotFound(code)
	}
	if err != nil {
		return err
	}
	b.reply(ctx, chat.Markdown(fmt.Sprintf("### ✅ Product Updated\n**Code:** %s\n**Name:** %s\n**Price:** %s WLs\n**Description:** %s",
		product.Code, product.Name, ledger.FormatAmount(product.Price), orDash(product.Description))))
	b.refreshCatalog(ctx)
	return nil
}

func (b *Bot) deleteProduct(ctx context.Context, request *request) error {
	if len(request.args) != 1 {
		return usagef("Expected a product code.")
	}
	product, err := b.catalog.GetProduct(ctx, request.args[0])
	if errors.Is(err, catalog.ErrNotFound) {
		return productNotFound(request.args[0])
	}
	if err != nil {
		return err
	}

	prompt := fmt.Sprintf("Are you sure you want to delete product %s (%s) and its %d stock items?",
		product.Code, product.Name, product.Available)
	confirmed, err := b.confirm(ctx, request, prompt, "❌ Operation cancelled.")
	if err != nil || !confirmed {
		return err
	}

	if err := b.catalog.DeleteProduct(ctx, product.Code); err != nil {
		return err
	}
	b.reply(ctx, chat.Markdown(fmt.Sprintf("### ✅ Product Deleted\n%s (%s) has been removed.", product.Name, product.Code)))
	b.refreshCatalog(ctx)
	return nil
}

func (b *Bot) addStock(ctx context.Context, request *request) error {
	if len(request.args) != 1 {
		return usagef("Expected a product code.")
	}
	if request.attachment == nil {
		return rejectf("Please attach a text file containing the stock items!")
	}
	product, err := b.catalog.GetProduct(ctx, request.args[0])
	if errors.Is(err, catalog.ErrNotFound) {
		return productNotFound(request.args[0])
	}
	if err != nil {
		return err
	}

	file := request.attachment
	artifact := stockimport.Artifact{
		Name: file.name,
		Size: file.size,
		Open: func(ctx context.Context) ([]byte, error) {
			return b.media.DownloadMedia(ctx, file.uri, b.maxUpload)
		},
	}
	status := b.newStatusMessage(ctx, "⏳ Progress: %d/%d items processed")
	result, err := b.importer.Import(ctx, artifact, product.Code, request.sender.String(), status.report)
	var invalid *stockimport.ValidationError
	if errors.As(err, &invalid) {
		return rejectf("%s", invalid.Reason)
	}
	if err != nil {
		return err
	}
	status.finish(fmt.Sprintf("✅ %d/%d items processed", result.Total, result.Total))

	var text strings.Builder
	fmt.Fprintf(&text, "### ✅ Stock Added\n**Product:** %s (%s)\n**Total Items:** %d\n**Added:** %d\n**Failed:** %d",
		product.Name, product.Code, result.Total, result.Added, result.Failed)
	if len(result.Failures) > 0 {
		text.WriteString("\n\n**Rejected lines:**")
		for _, failure := range result.Failures {
			fmt.Fprintf(&text, "\n- line %d: %s", failure.Line, failureReason(failure.Err))
		}
		if shown := len(result.Failures); shown < result.Failed {
			fmt.Fprintf(&text, "\n- … and %d more", result.Failed-shown)
		}
	}
	b.reply(ctx, chat.Markdown(text.String()))
	b.refreshCatalog(ctx)
	return nil
}

func (b *Bot) stockHistory(ctx context.Context, request *request) error {
	if len(request.args) < 1 || len(request.args) > 2 {
		return usagef("Expected a product code and an optional limit.")
	}
	limit, err := parseLimit(request.args[1:])
	if err != nil {
		return err
	}
	events, err := b.catalog.StockHistory(ctx, request.args[0], limit)
	if errors.Is(err, catalog.ErrNotFound) {
		return productNotFound(request.args[0])
	}
	if err != nil {
		return err
	}

	code := catalog.NormalizeCode(request.args[0])
	if len(events) == 0 {
		b.reply(ctx, chat.Text("No stock history for "+code+"."))
		return nil
	}
	var text strings.Builder
	fmt.Fprintf(&text, "### 📦 Stock History - %s", code)
	for _, event := range events {
		fmt.Fprintf(&text, "\n- %s `%s` ×%d by %s", event.At.Format(timestampLayout), event.Action, event.Quantity, event.Actor)
	}
	b.reply(ctx, chat.Markdown(text.String()))
	return nil
}

func productNotFound(code string) error {
	return rejectf("Product code `%s` not found!", catalog.NormalizeCode(code))
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, catalog.ErrDuplicateItem):
		return "duplicate item"
	case errors.Is(err, catalog.ErrNotFound):
		return "product no longer exists"
	default:
		return err.Error()
	}
}

const (
	timestampLayout = "2006-01-02 15:04:05"
	defaultLimit    = 10
	maxLimit        = 50
)

// parseLimit reads the optional trailing limit argument.
func parseLimit(args []string) (int, error) {
	if len(args) == 0 {
		return defaultLimit, nil
	}
	limit, err := strconv.Atoi(args[0])
	if err != nil || limit <= 0 {
		return 0, usagef("Limit must be a positive number, got %q.", args[0])
	}
	return min(limit, maxLimit), nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
