// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/bureau-foundation/shopkeep/lib/announce"
	"github.com/bureau-foundation/shopkeep/lib/authorization"
	"github.com/bureau-foundation/shopkeep/lib/catalog"
	"github.com/bureau-foundation/shopkeep/lib/chat"
	"github.com/bureau-foundation/shopkeep/lib/clock"
	"github.com/bureau-foundation/shopkeep/lib/gate"
	"github.com/bureau-foundation/shopkeep/lib/ledger"
	"github.com/bureau-foundation/shopkeep/lib/livestock"
	"github.com/bureau-foundation/shopkeep/lib/ref"
	"github.com/bureau-foundation/shopkeep/lib/settings"
	"github.com/bureau-foundation/shopkeep/lib/sqlitepool"
	"github.com/bureau-foundation/shopkeep/lib/stockimport"
	"github.com/bureau-foundation/shopkeep/messaging"
)

// mediaSession is the part of the Matrix session commands use beyond
// the reply channel: uploads for backups and downloads for stock files.
type mediaSession interface {
	UploadMedia(ctx context.Context, fileName, contentType string, body io.Reader) (string, error)
	DownloadMedia(ctx context.Context, contentURI string, limit int64) ([]byte, error)
	SendMessage(ctx context.Context, roomID ref.RoomID, content messaging.MessageContent) (ref.EventID, error)
}

// liveDisplay is the live stock synchronizer as commands see it.
type liveDisplay interface {
	TryTick(ctx context.Context) livestock.TickResult
	Status() livestock.Status
}

// Bot dispatches commands from the commands room. Each command runs in
// its own goroutine, so a command waiting on a confirmation never holds
// up the next one.
type Bot struct {
	prefix         string
	roomID         ref.RoomID
	guard          *authorization.Guard
	replies        chat.Channel
	gate           *gate.Gate
	confirmTimeout time.Duration
	importer       *stockimport.Pipeline
	maxUpload      int64
	fanout         *announce.Fanout
	catalog        *catalog.Store
	ledger         *ledger.Store
	settings       *settings.Store
	database       *sqlitepool.Pool
	media          mediaSession
	display        liveDisplay
	clock          clock.Clock
	startedAt      time.Time
	logger         *slog.Logger

	commands map[string]*command
	inFlight sync.WaitGroup
}

// command is one entry in the command table.
type command struct {
	name     string
	usage    string
	summary  string
	category string
	// open commands skip the admin check.
	open bool
	run  func(ctx context.Context, request *request) error
}

// request is one parsed command invocation.
type request struct {
	sender ref.UserID
	name   string
	args   []string
	// rest is the text after the command name, unsplit.
	rest       string
	attachment *attachment
}

// attachment is a file sent with a command as its caption.
type attachment struct {
	name string
	uri  string
	size int64
}

// usageError reports a malformed invocation; the reply shows the
// command's usage line.
type usageError struct {
	message string
}

func (e *usageError) Error() string { return e.message }

func usagef(format string, args ...any) error {
	return &usageError{message: fmt.Sprintf(format, args...)}
}

// rejection is a refusal shown to the sender as is: an unknown user,
// a bad amount. Not logged as a failure.
type rejection struct {
	message string
}

func (e *rejection) Error() string { return e.message }

func rejectf(format string, args ...any) error {
	return &rejection{message: fmt.Sprintf(format, args...)}
}

// Categories in the order adminhelp lists them.
var categories = []string{
	"Product Management",
	"Balance Management",
	"Transaction Management",
	"System Management",
	"Account",
}

func (b *Bot) registerCommands() {
	b.commands = make(map[string]*command)
	for _, c := range []*command{
		{name: "addproduct", usage: "addproduct <code> <name> <price> [description]", summary: "Add new product", category: "Product Management", run: b.addProduct},
		{name: "editproduct", usage: "editproduct <code> <field> <value>", summary: "Edit product details", category: "Product Management", run: b.editProduct},
		{name: "deleteproduct", usage: "deleteproduct <code>", summary: "Delete product", category: "Product Management", run: b.deleteProduct},
		{name: "addstock", usage: "addstock <code>", summary: "Add stock with file attachment", category: "Product Management", run: b.addStock},
		{name: "addbal", usage: "addbal <growid> <amount> <WL/DL/BGL>", summary: "Add balance", category: "Balance Management", run: b.addBalance},
		{name: "removebal", usage: "removebal <growid> <amount> <WL/DL/BGL>", summary: "Remove balance", category: "Balance Management", run: b.removeBalance},
		{name: "checkbal", usage: "checkbal <growid>", summary: "Check balance", category: "Balance Management", run: b.checkBalance},
		{name: "resetuser", usage: "resetuser <growid>", summary: "Reset balance", category: "Balance Management", run: b.resetUser},
		{name: "trxhistory", usage: "trxhistory <growid> [limit]", summary: "View transactions", category: "Transaction Management", run: b.transactionHistory},
		{name: "stockhistory", usage: "stockhistory <code> [limit]", summary: "View stock history", category: "Transaction Management", run: b.stockHistory},
		{name: "adminhelp", usage: "adminhelp", summary: "Show admin commands", category: "System Management", run: b.adminHelp},
		{name: "systeminfo", usage: "systeminfo", summary: "Show bot system information", category: "System Management", run: b.systemInfo},
		{name: "announcement", usage: "announcement <message>", summary: "Send announcement to all users", category: "System Management", run: b.announcement},
		{name: "maintenance", usage: "maintenance <on/off>", summary: "Toggle maintenance mode", category: "System Management", run: b.maintenance},
		{name: "blacklist", usage: "blacklist <add/remove> <growid>", summary: "Manage blacklisted users", category: "System Management", run: b.blacklist},
		{name: "backup", usage: "backup", summary: "Create database backup", category: "System Management", run: b.backup},
		{name: "register", usage: "register <growid>", summary: "Link your GrowID to this account", category: "Account", open: true, run: b.register},
	} {
		b.commands[c.name] = c
	}
}

// parseCommand splits a message body into a command name and its
// arguments. ok is false for messages that are not commands.
func parseCommand(body, prefix string) (name string, args []string, rest string, ok bool) {
	body = strings.TrimSpace(body)
	if prefix == "" || !strings.HasPrefix(body, prefix) {
		return "", nil, "", false
	}
	body = strings.TrimPrefix(body, prefix)
	name, rest, _ = strings.Cut(body, " ")
	if name == "" {
		return "", nil, "", false
	}
	rest = strings.TrimSpace(rest)
	return strings.ToLower(name), splitArgs(rest), rest, true
}

// splitArgs splits on whitespace, keeping double-quoted runs together
// so product names may contain spaces: addproduct DL "Diamond Lock" 100.
func splitArgs(text string) []string {
	var args []string
	var current strings.Builder
	quoted, pending := false, false
	for _, r := range text {
		switch {
		case r == '"':
			quoted = !quoted
			pending = true
		case !quoted && unicode.IsSpace(r):
			if pending {
				args = append(args, current.String())
				current.Reset()
				pending = false
			}
		default:
			current.WriteRune(r)
			pending = true
		}
	}
	if pending {
		args = append(args, current.String())
	}
	return args
}

// Dispatch starts the command in body, if it is one. It returns
// immediately; Wait blocks until every started command finishes.
func (b *Bot) Dispatch(ctx context.Context, sender ref.UserID, body string, file *attachment) bool {
	name, args, rest, ok := parseCommand(body, b.prefix)
	if !ok {
		return false
	}
	if _, known := b.commands[name]; !known {
		return false
	}
	request := &request{sender: sender, name: name, args: args, rest: rest, attachment: file}
	b.inFlight.Add(1)
	go func() {
		defer b.inFlight.Done()
		b.execute(ctx, request)
	}()
	return true
}

// Wait blocks until every dispatched command has finished.
func (b *Bot) Wait() {
	b.inFlight.Wait()
}

func (b *Bot) execute(ctx context.Context, request *request) {
	cmd := b.commands[request.name]
	logger := b.logger.With("command", request.name, "sender", request.sender.String())

	if !cmd.open && !b.guard.IsAuthorized(request.sender.String()) {
		b.reply(ctx, chat.Text("❌ You don't have permission to use admin commands!"))
		return
	}

	err := cmd.run(ctx, request)
	var usage *usageError
	var rejected *rejection
	switch {
	case err == nil:
		logger.Info("command completed")
	case errors.As(err, &rejected):
		logger.Info("command rejected", "reason", rejected.message)
		b.reply(ctx, chat.Markdown("❌ "+rejected.message))
	case errors.As(err, &usage):
		b.reply(ctx, chat.Markdown(fmt.Sprintf("❌ %s\nUsage: `%s%s`", usage.message, b.prefix, cmd.usage)))
	default:
		logger.Error("command failed", "error", err)
		b.reply(ctx, chat.Text("❌ Error: "+err.Error()))
	}
}

// reply posts content to the commands room. A failed reply is logged;
// the command's effects stand.
func (b *Bot) reply(ctx context.Context, content chat.Content) ref.EventID {
	id, err := b.replies.Publish(ctx, content)
	if err != nil {
		b.logger.Warn("posting reply failed", "error", err)
	}
	return id
}

// confirm asks the requester to confirm prompt. Anything other than an
// explicit confirmation is reported as cancelled.
func (b *Bot) confirm(ctx context.Context, request *request, prompt, cancelled string) (bool, error) {
	outcome, err := b.gate.RequestConfirmation(ctx, prompt, request.sender, b.confirmTimeout)
	if err != nil {
		return false, err
	}
	switch outcome {
	case gate.Confirmed:
		return true, nil
	case gate.TimedOut:
		// The gate has already said so.
		return false, nil
	default:
		b.reply(ctx, chat.Text(cancelled))
		return false, nil
	}
}

// statusMessage is a progress message in the commands room. Nothing
// is posted until the first report, so a batch rejected before it
// starts leaves no message behind.
type statusMessage struct {
	bot    *Bot
	ctx    context.Context
	format string
	id     ref.EventID
}

// newStatusMessage returns a status message whose reports render
// format with (processed, total).
func (b *Bot) newStatusMessage(ctx context.Context, format string) *statusMessage {
	return &statusMessage{bot: b, ctx: ctx, format: format}
}

// report is a progress.Func.
func (s *statusMessage) report(processed, total int) {
	s.show(chat.Text(fmt.Sprintf(s.format, processed, total)))
}

// finish replaces a posted status message with done. It does nothing
// if no report was ever made.
func (s *statusMessage) finish(done string) {
	if s.id.IsZero() {
		return
	}
	s.show(chat.Text(done))
}

func (s *statusMessage) show(content chat.Content) {
	if s.id.IsZero() {
		s.id = s.bot.reply(s.ctx, content)
		return
	}
	if err := s.bot.replies.Edit(s.ctx, s.id, content); err != nil {
		s.bot.logger.Debug("progress update failed", "error", err)
	}
}

// refreshCatalog nudges the live stock message after a catalog change.
func (b *Bot) refreshCatalog(ctx context.Context) {
	if b.display == nil {
		return
	}
	b.display.TryTick(ctx)
}
