// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Shopkeep is the operator CLI for a running shopkeep-bot. It talks to
// the daemon's ops socket (--socket, SHOPKEEP_OPS_SOCKET, or
// ./shopkeep.sock).
//
//	shopkeep status [--json]     build, uptime, maintenance, live stock
//	shopkeep reconcile [--json]  run one live stock tick now
//	shopkeep version
//
// Output is colored when stdout is a terminal.
package main
