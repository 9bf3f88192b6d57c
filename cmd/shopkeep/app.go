// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/shopkeep/lib/livestock"
	"github.com/bureau-foundation/shopkeep/lib/service"
	"github.com/bureau-foundation/shopkeep/lib/version"
)

const defaultSocket = "shopkeep.sock"

// app carries the process-wide state the commands share.
type app struct {
	ctx    context.Context
	stdout io.Writer
	styles styles

	// now is time.Now outside tests.
	now func() time.Time
}

func (a *app) root() *command {
	return &command{
		name:    "shopkeep",
		summary: "Operator tool for a running shopkeep-bot.",
		subcommands: []*command{
			a.statusCommand(),
			a.reconcileCommand(),
			a.versionCommand(),
		},
	}
}

// socketFlags binds the flags shared by the commands that talk to the
// daemon.
func socketFlags(name string, socket *string, asJSON *bool) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fallback := os.Getenv("SHOPKEEP_OPS_SOCKET")
	if fallback == "" {
		fallback = defaultSocket
	}
	flagSet.StringVar(socket, "socket", fallback, "daemon ops socket path (env SHOPKEEP_OPS_SOCKET)")
	flagSet.BoolVar(asJSON, "json", false, "output as JSON")
	return flagSet
}

func (a *app) statusCommand() *command {
	var socket string
	var asJSON bool
	return &command{
		name:    "status",
		summary: "Show daemon and live stock status",
		flags:   func() *pflag.FlagSet { return socketFlags("status", &socket, &asJSON) },
		run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			status, err := service.NewClient(socket).Status(a.ctx)
			if err != nil {
				return diagnose(err, socket)
			}
			if asJSON {
				return a.writeJSON(status)
			}
			a.printStatus(status)
			return nil
		},
	}
}

func (a *app) reconcileCommand() *command {
	var socket string
	var asJSON bool
	return &command{
		name:    "reconcile",
		summary: "Run one live stock tick now",
		flags:   func() *pflag.FlagSet { return socketFlags("reconcile", &socket, &asJSON) },
		run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			reply, err := service.NewClient(socket).Reconcile(a.ctx)
			if err != nil {
				return diagnose(err, socket)
			}
			if asJSON {
				return a.writeJSON(reply)
			}
			fmt.Fprintf(a.stdout, "%s %s\n", a.styles.heading.Render("Tick:"), a.styles.result(reply.Result))
			a.printLiveStock(reply.LiveStock)
			if reply.Result == livestock.TickFailed {
				return errors.New("tick failed")
			}
			return nil
		},
	}
}

func (a *app) versionCommand() *command {
	return &command{
		name:    "version",
		summary: "Print version information",
		run: func([]string) error {
			fmt.Fprintf(a.stdout, "shopkeep %s\n", version.Full())
			return nil
		},
	}
}

func (a *app) printStatus(status service.StatusReply) {
	build := status.Build
	fmt.Fprintf(a.stdout, "%s %s %s\n",
		a.styles.heading.Render("shopkeep-bot"),
		build.Version,
		a.styles.faint.Render(fmt.Sprintf("(%s, %s)", build.Commit, build.Go)))
	a.field("Started", fmt.Sprintf("%s (%s)",
		status.StartedAt.Local().Format(time.DateTime), humanize.RelTime(status.StartedAt, a.now(), "ago", "from now")))
	a.field("Maintenance", a.styles.toggle(status.Maintenance))
	a.printLiveStock(status.LiveStock)
}

func (a *app) printLiveStock(live livestock.Status) {
	a.field("Live stock", a.styles.state(live.State))
	if live.MessageID != "" {
		a.field("Message", live.MessageID)
	}
	if !live.LastUpdate.IsZero() {
		a.field("Last update", humanize.RelTime(live.LastUpdate, a.now(), "ago", "from now"))
	}
	running := "stopped"
	if live.Running {
		running = "running"
	}
	a.field("Loop", fmt.Sprintf("%s every %s", running, live.Interval))
	a.field("Ticks", fmt.Sprintf("%s (skipped %s, failed %s)",
		humanize.Comma(int64(live.Ticks)), humanize.Comma(int64(live.Skipped)), humanize.Comma(int64(live.Failures))))
	a.field("Last result", a.styles.result(live.LastResult))
	if live.LastError != "" {
		a.field("Last error", a.styles.bad.Render(live.LastError))
	}
}

func (a *app) field(label, value string) {
	fmt.Fprintf(a.stdout, "  %s %s\n", a.styles.label.Render(fmt.Sprintf("%-12s", label+":")), value)
}

func (a *app) writeJSON(value any) error {
	encoder := json.NewEncoder(a.stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

// diagnose adds a hint to connection failures that usually mean the
// daemon is not running or runs without an ops socket.
func diagnose(err error, socket string) error {
	var serviceErr *service.ServiceError
	if errors.As(err, &serviceErr) {
		return fmt.Errorf("daemon: %s", serviceErr.Message)
	}
	if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ECONNREFUSED) {
		return fmt.Errorf("%w\n\nIs shopkeep-bot running with ops.socket set to %s?", err, socket)
	}
	return err
}
