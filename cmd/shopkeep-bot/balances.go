// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bureau-foundation/shopkeep/lib/chat"
	"github.com/bureau-foundation/shopkeep/lib/ledger"
)

// maxAmount bounds a single balance change in units of its currency,
// keeping the WL conversion far from overflow.
const maxAmount = 1_000_000_000

// balanceChange is a parsed "<growid> <amount> <currency>" triple.
type balanceChange struct {
	growID   string
	amount   int64
	currency ledger.Currency
	wl       int64
}

func parseBalanceChange(args []string) (balanceChange, error) {
	if len(args) != 3 {
		return balanceChange{}, usagef("Missing arguments.")
	}
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return balanceChange{}, usagef("Amount must be a whole number, got %q.", args[1])
	}
	if amount <= 0 {
		return balanceChange{}, rejectf("Amount must be positive!")
	}
	if amount > maxAmount {
		return balanceChange{}, rejectf("Amount must not exceed %s.", ledger.FormatAmount(maxAmount))
	}
	currency, err := ledger.ParseCurrency(args[2])
	if err != nil {
		return balanceChange{}, rejectf("Invalid currency. Use: %s", strings.Join(ledger.CurrencyNames(), ", "))
	}
	wl, err := ledger.ToWL(amount, currency)
	if err != nil {
		return balanceChange{}, err
	}
	return balanceChange{growID: args[0], amount: amount, currency: currency, wl: wl}, nil
}

func (b *Bot) addBalance(ctx context.Context, request *request) error {
	return b.changeBalance(ctx, request, 1, ledger.TransactionAdminAdd, "Added", "✅ Balance Added")
}

func (b *Bot) removeBalance(ctx context.Context, request *request) error {
	return b.changeBalance(ctx, request, -1, ledger.TransactionAdminRemove, "Removed", "✅ Balance Removed")
}

func (b *Bot) changeBalance(ctx context.Context, request *request, sign int64, kind ledger.TransactionType, verb, title string) error {
	change, err := parseBalanceChange(request.args)
	if err != nil {
		return err
	}

	details := fmt.Sprintf("%s %s %s by admin %s", verb, ledger.FormatAmount(change.amount), change.currency, request.sender)
	balance, err := b.ledger.Update(ctx, change.growID, sign*change.wl, kind, details)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return userNotFound(change.growID)
	case errors.Is(err, ledger.ErrInsufficientBalance):
		current, getErr := b.ledger.Get(ctx, change.growID)
		if getErr != nil {
			return err
		}
		return rejectf("Insufficient balance! %s holds %s.", change.growID, current.Format())
	case err != nil:
		return err
	}

	b.reply(ctx, chat.Markdown(fmt.Sprintf("### %s\n**GrowID:** %s\n**%s:** %s %s\n**New Balance:** %s",
		title, change.growID, verb, ledger.FormatAmount(change.amount), change.currency, balance.Format())))
	return nil
}

func (b *Bot) checkBalance(ctx context.Context, request *request) error {
	if len(request.args) != 1 {
		return usagef("Expected a GrowID.")
	}
	growID := request.args[0]
	balance, err := b.ledger.Get(ctx, growID)
	if errors.Is(err, ledger.ErrNotFound) {
		return userNotFound(growID)
	}
	if err != nil {
		return err
	}
	history, err := b.ledger.History(ctx, growID, 5)
	if err != nil {
		return err
	}

	var text strings.Builder
	fmt.Fprintf(&text, "### 👤 User Information - %s\n**Current Balance:** %s", growID, balance.Format())
	if len(history) > 0 {
		text.WriteString("\n\n**Recent Transactions:**")
		writeTransactions(&text, history)
	}
	b.reply(ctx, chat.Markdown(text.String()))
	return nil
}

func (b *Bot) resetUser(ctx context.Context, request *request) error {
	if len(request.args) != 1 {
		return usagef("Expected a GrowID.")
	}
	growID := request.args[0]
	confirmed, err := b.confirm(ctx, request, fmt.Sprintf("Are you sure you want to reset %s's balance?", growID), "❌ Operation cancelled.")
	if err != nil || !confirmed {
		return err
	}

	current, err := b.ledger.Get(ctx, growID)
	if errors.Is(err, ledger.ErrNotFound) {
		return userNotFound(growID)
	}
	if err != nil {
		return err
	}
	balance, err := b.ledger.Update(ctx, growID, -current.WL, ledger.TransactionAdminReset,
		fmt.Sprintf("Balance reset by admin %s", request.sender))
	if err != nil {
		return err
	}
	b.reply(ctx, chat.Markdown(fmt.Sprintf("### ✅ Balance Reset\nUser %s's balance has been reset.\n**Previous Balance:** %s\n**New Balance:** %s",
		growID, current.Format(), balance.Format())))
	return nil
}

func (b *Bot) transactionHistory(ctx context.Context, request *request) error {
	if len(request.args) < 1 || len(request.args) > 2 {
		return usagef("Expected a GrowID and an optional limit.")
	}
	limit, err := parseLimit(request.args[1:])
	if err != nil {
		return err
	}
	growID := request.args[0]
	history, err := b.ledger.History(ctx, growID, limit)
	if errors.Is(err, ledger.ErrNotFound) {
		return userNotFound(growID)
	}
	if err != nil {
		return err
	}
	if len(history) == 0 {
		b.reply(ctx, chat.Text("No transactions for "+growID+"."))
		return nil
	}
	var text strings.Builder
	fmt.Fprintf(&text, "### 📜 Transaction History - %s", growID)
	writeTransactions(&text, history)
	b.reply(ctx, chat.Markdown(text.String()))
	return nil
}

// register links the sender's Matrix account to a GrowID so that
// announcements reach them. Open to everyone, refused for blacklisted
// GrowIDs and while maintenance mode is on.
func (b *Bot) register(ctx context.Context, request *request) error {
	if len(request.args) != 1 {
		return usagef("Expected your GrowID.")
	}
	growID := request.args[0]

	maintenance, err := b.settings.Maintenance(ctx)
	if err != nil {
		return err
	}
	if maintenance && !b.guard.IsAdmin(request.sender.String()) {
		b.reply(ctx, chat.Text("🔧 The shop is in maintenance mode. Please try again later."))
		return nil
	}
	blacklisted, err := b.settings.IsBlacklisted(ctx, growID)
	if err != nil {
		return err
	}
	if blacklisted {
		b.reply(ctx, chat.Text("⛔ GrowID "+growID+" is blacklisted."))
		return nil
	}

	if err := b.ledger.Register(ctx, growID, request.sender); err != nil {
		return err
	}
	b.reply(ctx, chat.Text(fmt.Sprintf("✅ GrowID %s is now linked to %s.", growID, request.sender)))
	return nil
}

func userNotFound(growID string) error {
	return rejectf("User %s not found!", growID)
}

func writeTransactions(text *strings.Builder, history []ledger.Transaction) {
	for _, transaction := range history {
		sign := "+"
		amount := transaction.Amount
		if amount < 0 {
			sign, amount = "-", -amount
		}
		fmt.Fprintf(text, "\n- %s `%s` %s%s WL → %s WL (%s)",
			transaction.At.Format(timestampLayout), transaction.Type, sign, ledger.FormatAmount(amount),
			ledger.FormatAmount(transaction.BalanceAfter.WL), transaction.Details)
	}
}
