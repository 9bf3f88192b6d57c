// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// RoomAlias is a validated, human-readable Matrix room alias (e.g.,
// "#live-stock:shop.example"). Configuration may name rooms by alias;
// the bot resolves them to RoomIDs at startup.
type RoomAlias struct {
	alias string
}

// ParseRoomAlias validates and wraps a raw room alias.
func ParseRoomAlias(raw string) (RoomAlias, error) {
	if _, _, err := parseSigilID(raw, '#', "room alias"); err != nil {
		return RoomAlias{}, err
	}
	return RoomAlias{alias: raw}, nil
}

// MustParseRoomAlias is ParseRoomAlias for known-valid input.
func MustParseRoomAlias(raw string) RoomAlias {
	a, err := ParseRoomAlias(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseRoomAlias(%q): %v", raw, err))
	}
	return a
}

// String returns the full alias.
func (a RoomAlias) String() string { return a.alias }

// IsZero reports whether a is unset.
func (a RoomAlias) IsZero() bool { return a.alias == "" }

func (a RoomAlias) MarshalText() ([]byte, error) { return []byte(a.alias), nil }

func (a *RoomAlias) UnmarshalText(data []byte) error {
	return unmarshalText(data, a, ParseRoomAlias)
}
