// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bureau-foundation/shopkeep/lib/announce"
	"github.com/bureau-foundation/shopkeep/lib/chat"
	"github.com/bureau-foundation/shopkeep/lib/ledger"
	"github.com/bureau-foundation/shopkeep/lib/shopdb"
	"github.com/bureau-foundation/shopkeep/lib/version"
	"github.com/bureau-foundation/shopkeep/messaging"
)

func (b *Bot) adminHelp(ctx context.Context, request *request) error {
	var text strings.Builder
	text.WriteString("## 🛠️ Admin Commands\nAvailable administrative commands")
	for _, category := range categories {
		var entries []*command
		for _, c := range b.commands {
			if c.category == category {
				entries = append(entries, c)
			}
		}
		slices.SortFunc(entries, func(x, y *command) int { return strings.Compare(x.name, y.name) })
		if len(entries) == 0 {
			continue
		}
		fmt.Fprintf(&text, "\n\n### 📋 %s", category)
		for _, c := range entries {
			fmt.Fprintf(&text, "\n- `%s%s` %s", b.prefix, c.usage, c.summary)
		}
	}
	fmt.Fprintf(&text, "\n\n_Requested by %s_", request.sender)
	b.reply(ctx, chat.Markdown(text.String()))
	return nil
}

func (b *Bot) systemInfo(ctx context.Context, _ *request) error {
	host := readHostInfo()
	uptime := b.clock.Now().Sub(b.startedAt).Truncate(time.Second)

	var text strings.Builder
	text.WriteString("## 🤖 Bot System Information\n### 💻 System")
	fmt.Fprintf(&text, "\nOS: %s %s (%s)", host.system, host.release, runtime.GOARCH)
	if host.memoryTotal > 0 {
		used := host.memoryTotal - host.memoryFree
		fmt.Fprintf(&text, "\nRAM: %s/%s (%.1f%%)", humanize.IBytes(used), humanize.IBytes(host.memoryTotal),
			percent(used, host.memoryTotal))
	}
	if host.diskTotal > 0 {
		used := host.diskTotal - host.diskFree
		fmt.Fprintf(&text, "\nDisk: %s/%s (%.1f%%)", humanize.IBytes(used), humanize.IBytes(host.diskTotal),
			percent(used, host.diskTotal))
	}
	if host.load1 >= 0 {
		fmt.Fprintf(&text, "\nLoad: %.2f", host.load1)
	}

	var memory runtime.MemStats
	runtime.ReadMemStats(&memory)
	text.WriteString("\n### 🤖 Bot")
	fmt.Fprintf(&text, "\nVersion: %s", version.Info())
	fmt.Fprintf(&text, "\nUptime: %s (since %s)", uptime, humanize.Time(b.startedAt))
	fmt.Fprintf(&text, "\nGoroutines: %d", runtime.NumGoroutine())
	fmt.Fprintf(&text, "\nHeap: %s", humanize.IBytes(memory.HeapAlloc))
	fmt.Fprintf(&text, "\nCommands: %d", len(b.commands))
	if b.display != nil {
		status := b.display.Status()
		fmt.Fprintf(&text, "\nLive stock: %s, %d ticks, %d failures", status.State, status.Ticks, status.Failures)
	}
	b.reply(ctx, chat.Markdown(text.String()))
	return nil
}

func percent(part, whole uint64) float64 {
	return float64(part) * 100 / float64(whole)
}

func (b *Bot) announcement(ctx context.Context, request *request) error {
	if request.rest == "" {
		return usagef("Missing announcement text.")
	}
	confirmed, err := b.confirm(ctx, request, "Are you sure you want to send this announcement to all users?", "❌ Announcement cancelled.")
	if err != nil || !confirmed {
		return err
	}

	recipients, err := b.ledger.Recipients(ctx)
	if err != nil {
		return err
	}
	status := b.newStatusMessage(ctx, "⏳ Progress: %d/%d users processed")
	result := b.fanout.Broadcast(ctx, announce.Compose(request.rest, request.sender), recipients, status.report)
	status.finish(fmt.Sprintf("✅ %d/%d users processed", result.Total, result.Total))
	b.reply(ctx, chat.Markdown(fmt.Sprintf("### ✅ Announcement Sent\n**Total Users:** %d\n**Sent Successfully:** %d\n**Failed:** %d",
		result.Total, result.Sent, result.Failed)))
	return nil
}

func (b *Bot) maintenance(ctx context.Context, request *request) error {
	if len(request.args) != 1 {
		return usagef("Please specify 'on' or 'off'")
	}
	mode := strings.ToLower(request.args[0])
	if mode != "on" && mode != "off" {
		return usagef("Please specify 'on' or 'off'")
	}
	if err := b.settings.SetMaintenance(ctx, mode == "on"); err != nil {
		return err
	}
	b.reply(ctx, chat.Markdown(fmt.Sprintf("### 🔧 Maintenance Mode\nMaintenance mode has been turned **%s**\n_Changed by %s_", mode, request.sender)))

	if mode == "on" {
		recipients, err := b.ledger.Recipients(ctx)
		if err != nil {
			return err
		}
		result := b.fanout.Broadcast(ctx, chat.Text(announce.MaintenanceNotice), recipients, nil)
		b.logger.Info("maintenance notice sent", "sent", result.Sent, "failed", result.Failed)
	}
	return nil
}

func (b *Bot) blacklist(ctx context.Context, request *request) error {
	if len(request.args) != 2 {
		return usagef("Please specify 'add' or 'remove' and a GrowID")
	}
	action, growID := strings.ToLower(request.args[0]), request.args[1]
	switch action {
	case "add":
		if _, err := b.ledger.Get(ctx, growID); err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return userNotFound(growID)
			}
			return err
		}
		if err := b.settings.Blacklist(ctx, growID, request.sender.String()); err != nil {
			return err
		}
		b.reply(ctx, chat.Markdown(fmt.Sprintf("### ⛔ Blacklist Updated\nUser %s has been added to the blacklist.", growID)))
	case "remove":
		removed, err := b.settings.Unblacklist(ctx, growID)
		if err != nil {
			return err
		}
		if !removed {
			return rejectf("User %s is not blacklisted.", growID)
		}
		b.reply(ctx, chat.Markdown(fmt.Sprintf("### ⛔ Blacklist Updated\nUser %s has been removed from the blacklist.", growID)))
	default:
		return usagef("Please specify 'add' or 'remove'")
	}
	return nil
}

func (b *Bot) backup(ctx context.Context, _ *request) error {
	var buffer bytes.Buffer
	snapshot, err := shopdb.Backup(ctx, b.database, &buffer, "")
	if err != nil {
		return err
	}

	fileName := fmt.Sprintf("backup_%s.db.zst", b.clock.Now().UTC().Format("20060102_150405"))
	const contentType = "application/zstd"
	uri, err := b.media.UploadMedia(ctx, fileName, contentType, &buffer)
	if err != nil {
		return fmt.Errorf("uploading backup: %w", err)
	}

	caption := fmt.Sprintf("✅ Database backup created! %s compressed from %s, blake3 %s",
		humanize.IBytes(uint64(snapshot.CompressedSize)), humanize.IBytes(uint64(snapshot.DatabaseSize)), snapshot.Digest)
	_, err = b.media.SendMessage(ctx, b.roomID, messaging.MessageContent{
		MsgType:  messaging.MsgTypeFile,
		Body:     caption,
		FileName: fileName,
		URL:      uri,
		Info:     &messaging.FileInfo{MimeType: contentType, Size: snapshot.CompressedSize},
	})
	if err != nil {
		return fmt.Errorf("posting backup: %w", err)
	}
	b.logger.Info("database backup created",
		"file", fileName,
		"size", snapshot.CompressedSize,
		"digest", snapshot.Digest,
	)
	return nil
}
