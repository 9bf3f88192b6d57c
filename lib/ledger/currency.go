// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Currency is a denomination of the shop's currency. Every balance is
// stored in World Locks; larger locks are fixed multiples.
type Currency string

const (
	WL  Currency = "WL"
	DL  Currency = "DL"
	BGL Currency = "BGL"
)

// DefaultRates is the value of one unit of each currency in WL.
var DefaultRates = map[Currency]int64{
	WL:  1,
	DL:  100,
	BGL: 10000,
}

// ParseCurrency accepts a currency name in any case.
func ParseCurrency(name string) (Currency, error) {
	currency := Currency(strings.ToUpper(strings.TrimSpace(name)))
	if _, ok := DefaultRates[currency]; !ok {
		return "", fmt.Errorf("%w: %q (use %s)", ErrUnknownCurrency, name, strings.Join(CurrencyNames(), ", "))
	}
	return currency, nil
}

// CurrencyNames lists the known currencies from smallest to largest.
func CurrencyNames() []string {
	currencies := slices.SortedFunc(maps.Keys(DefaultRates), func(a, b Currency) int {
		return int(DefaultRates[a] - DefaultRates[b])
	})
	names := make([]string, len(currencies))
	for i, currency := range currencies {
		names[i] = string(currency)
	}
	return names
}

// ToWL converts amount units of currency into World Locks.
func ToWL(amount int64, currency Currency) (int64, error) {
	rate, ok := DefaultRates[currency]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCurrency, currency)
	}
	return amount * rate, nil
}

var printer = message.NewPrinter(language.English)

// FormatAmount renders n with thousands separators ("12,345").
func FormatAmount(n int64) string {
	return printer.Sprintf("%d", n)
}

// Balance is an amount held in World Locks.
type Balance struct {
	WL int64
}

// Breakdown splits the balance into the fewest locks.
func (b Balance) Breakdown() (bgl, dl, wl int64) {
	remaining := b.WL
	bgl = remaining / DefaultRates[BGL]
	remaining -= bgl * DefaultRates[BGL]
	dl = remaining / DefaultRates[DL]
	wl = remaining - dl*DefaultRates[DL]
	return bgl, dl, wl
}

// Format renders the balance as "1 BGL, 2 DL, 3 WL (10,203 WL)". Zero
// denominations are omitted.
func (b Balance) Format() string {
	bgl, dl, wl := b.Breakdown()
	var parts []string
	if bgl != 0 {
		parts = append(parts, FormatAmount(bgl)+" BGL")
	}
	if dl != 0 {
		parts = append(parts, FormatAmount(dl)+" DL")
	}
	if wl != 0 || len(parts) == 0 {
		parts = append(parts, FormatAmount(wl)+" WL")
	}
	return fmt.Sprintf("%s (%s WL)", strings.Join(parts, ", "), FormatAmount(b.WL))
}
