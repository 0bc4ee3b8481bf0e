package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Join(ctx context.Context) error
	Login(ctx context.Context) error
	AddPerson(ctx context.Context) error
	AddNote(ctx context.Context) error
	AddGroup(ctx context.Context) error
	AddAction(ctx context.Context) error
	List(ctx context.Context) error
	Show(ctx context.Context) error
	Delete(ctx context.Context) error
	Conflicts(ctx context.Context) error
	Resolve(ctx context.Context) error
	Sync(ctx context.Context) error
	Devices(ctx context.Context) error
	Approve(ctx context.Context) error
	Revoke(ctx context.Context) error
	Logout(ctx context.Context) error
}

// runREPL starts a simple read-eval-print loop for the Kith CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Any errors returned by command handlers are ignored here; handlers log
// their own errors. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("kith> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: (l)ist, addperson, addnote, addgroup, addaction, show, delete, conflicts, resolve, sync, devices, approve, revoke, logout, exit")
			} else {
				printlnFn("Available commands: register, join, login, exit")
			}

		case "register":
			_ = a.Register(ctx)

		case "join":
			_ = a.Join(ctx)

		case "login":
			_ = a.Login(ctx)

		case "addperson":
			_ = a.AddPerson(ctx)

		case "addnote":
			_ = a.AddNote(ctx)

		case "addgroup":
			_ = a.AddGroup(ctx)

		case "addaction":
			_ = a.AddAction(ctx)

		case "show":
			_ = a.Show(ctx)

		case "l", "list":
			_ = a.List(ctx)

		case "delete":
			_ = a.Delete(ctx)

		case "conflicts":
			_ = a.Conflicts(ctx)

		case "resolve":
			_ = a.Resolve(ctx)

		case "sync":
			_ = a.Sync(ctx)

		case "devices":
			_ = a.Devices(ctx)

		case "approve":
			_ = a.Approve(ctx)

		case "revoke":
			_ = a.Revoke(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
