// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/shopkeep/lib/livestock"
	"github.com/bureau-foundation/shopkeep/lib/service"
	"github.com/bureau-foundation/shopkeep/lib/testutil"
	"github.com/bureau-foundation/shopkeep/lib/version"
)

var startedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type daemonStub struct {
	result     livestock.TickResult
	statusErr  error
	reconciles atomic.Int32
}

func (d *daemonStub) ops() service.Ops {
	return service.Ops{
		Status: func(context.Context) (service.StatusReply, error) {
			if d.statusErr != nil {
				return service.StatusReply{}, d.statusErr
			}
			return service.StatusReply{
				Build:       version.Build{Version: "1.2.3", Commit: "abc123", Go: "go1.25.6"},
				StartedAt:   startedAt,
				Maintenance: true,
				LiveStock: livestock.Status{
					State:      livestock.StateActive,
					MessageID:  "$live",
					LastUpdate: startedAt.Add(3*time.Hour - 30*time.Second),
					Interval:   15 * time.Second,
					Running:    true,
					Ticks:      1204,
					Failures:   2,
					LastResult: livestock.TickEdited,
				},
			}, nil
		},
		Reconcile: func(context.Context) (service.ReconcileReply, error) {
			d.reconciles.Add(1)
			return service.ReconcileReply{
				Result:    d.result,
				LiveStock: livestock.Status{State: livestock.StateLost, LastError: "M_FORBIDDEN"},
			}, nil
		},
		Ready: func() bool { return true },
	}
}

func startDaemon(t *testing.T, stub *daemonStub) string {
	t.Helper()
	socketPath := filepath.Join(testutil.SocketDir(t), "ops.sock")
	server := service.NewSocketServer(socketPath, slog.New(slog.DiscardHandler))
	service.RegisterOps(server, stub.ops())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 5*time.Second, "socket server stop"); err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "socket server ready")
	return socketPath
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, help bytes.Buffer
	cli := &app{
		ctx:    context.Background(),
		stdout: &stdout,
		styles: newStyles(false),
		now:    func() time.Time { return startedAt.Add(3 * time.Hour) },
	}
	err := cli.root().execute(args, &help)
	return stdout.String(), help.String(), err
}

func TestStatusText(t *testing.T) {
	socketPath := startDaemon(t, &daemonStub{})

	output, _, err := runCLI(t, "status", "--socket", socketPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{
		"shopkeep-bot 1.2.3 (abc123, go1.25.6)",
		"(3 hours ago)",
		"Maintenance: on",
		"Live stock:  active",
		"Message:     $live",
		"Last update: 30 seconds ago",
		"Loop:        running every 15s",
		"Ticks:       1,204 (skipped 0, failed 2)",
		"Last result: edited",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("status output missing %q:\n%s", want, output)
		}
	}
	if strings.Contains(output, "Last error") {
		t.Errorf("status output shows an empty last error:\n%s", output)
	}
	if strings.Contains(output, "\x1b[") {
		t.Errorf("plain output contains escape sequences: %q", output)
	}
}

func TestStatusJSON(t *testing.T) {
	socketPath := startDaemon(t, &daemonStub{})

	output, _, err := runCLI(t, "status", "--json", "--socket", socketPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var status service.StatusReply
	if err := json.Unmarshal([]byte(output), &status); err != nil {
		t.Fatalf("decoding %q: %v", output, err)
	}
	if !status.Maintenance || status.LiveStock.MessageID != "$live" || status.LiveStock.Ticks != 1204 {
		t.Errorf("status = %+v", status)
	}
	if !status.StartedAt.Equal(startedAt) {
		t.Errorf("StartedAt = %v, want %v", status.StartedAt, startedAt)
	}
}

func TestStatusDaemonError(t *testing.T) {
	socketPath := startDaemon(t, &daemonStub{statusErr: errors.New("database is closed")})

	_, _, err := runCLI(t, "status", "--socket", socketPath)
	if err == nil || err.Error() != "daemon: database is closed" {
		t.Fatalf("err = %v, want daemon error", err)
	}
}

func TestStatusWithoutDaemon(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "missing.sock")

	_, _, err := runCLI(t, "status", "--socket", socketPath)
	if err == nil {
		t.Fatal("status against a missing socket succeeded")
	}
	if !strings.Contains(err.Error(), "Is shopkeep-bot running") {
		t.Errorf("err = %v, want a hint about the daemon", err)
	}
}

func TestReconcile(t *testing.T) {
	stub := &daemonStub{result: livestock.TickRepublished}
	socketPath := startDaemon(t, stub)

	output, _, err := runCLI(t, "reconcile", "--socket", socketPath)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if stub.reconciles.Load() != 1 {
		t.Errorf("reconciles = %d, want 1", stub.reconciles.Load())
	}
	for _, want := range []string{"Tick: republished", "Live stock:  lost", "Last error:  M_FORBIDDEN"} {
		if !strings.Contains(output, want) {
			t.Errorf("reconcile output missing %q:\n%s", want, output)
		}
	}
}

func TestReconcileFailedTick(t *testing.T) {
	socketPath := startDaemon(t, &daemonStub{result: livestock.TickFailed})

	output, _, err := runCLI(t, "reconcile", "--socket", socketPath)
	if err == nil || err.Error() != "tick failed" {
		t.Errorf("err = %v, want tick failed", err)
	}
	if !strings.Contains(output, "Tick: failed") {
		t.Errorf("output = %q", output)
	}
}

func TestReconcileJSON(t *testing.T) {
	socketPath := startDaemon(t, &daemonStub{result: livestock.TickEdited})

	output, _, err := runCLI(t, "reconcile", "--json", "--socket", socketPath)
	if err != nil {
		t.Fatalf("reconcile --json: %v", err)
	}
	var reply service.ReconcileReply
	if err := json.Unmarshal([]byte(output), &reply); err != nil {
		t.Fatalf("decoding %q: %v", output, err)
	}
	if reply.Result != livestock.TickEdited || reply.LiveStock.State != livestock.StateLost {
		t.Errorf("reply = %+v", reply)
	}
}

func TestVersion(t *testing.T) {
	output, _, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(output, "shopkeep "+version.Info()) {
		t.Errorf("output = %q", output)
	}
}

func TestCommandTree(t *testing.T) {
	_, help, err := runCLI(t)
	if err == nil || err.Error() != "subcommand required" {
		t.Errorf("no args: err = %v", err)
	}
	for _, name := range []string{"status", "reconcile", "version"} {
		if !strings.Contains(help, name) {
			t.Errorf("root help missing %q:\n%s", name, help)
		}
	}

	if _, _, err := runCLI(t, "restock"); err == nil || !strings.Contains(err.Error(), `unknown command "restock"`) {
		t.Errorf("unknown command: err = %v", err)
	}

	if _, _, err := runCLI(t, "status", "--sokcet", "x"); err == nil || !strings.Contains(err.Error(), "shopkeep status --help") {
		t.Errorf("bad flag: err = %v", err)
	}

	if _, _, err := runCLI(t, "status", "extra"); err == nil || !strings.Contains(err.Error(), `unexpected argument "extra"`) {
		t.Errorf("extra argument: err = %v", err)
	}

	_, help, err = runCLI(t, "status", "--help")
	if err != nil {
		t.Fatalf("status --help: %v", err)
	}
	if !strings.Contains(help, "--socket") || !strings.Contains(help, "--json") {
		t.Errorf("status help missing flags:\n%s", help)
	}
}

func TestStyledOutputColorsState(t *testing.T) {
	plain := newStyles(false)
	if got := plain.state(livestock.StateLost); got != "lost" {
		t.Errorf("plain state = %q", got)
	}
	if got := plain.result(""); got != "-" {
		t.Errorf("plain empty result = %q", got)
	}
	if got := newStyles(true).toggle(false); !strings.Contains(got, "off") {
		t.Errorf("styled toggle = %q", got)
	}
}
