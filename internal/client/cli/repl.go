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
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Add(ctx context.Context) error
	List(ctx context.Context) error
	Update(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Sync(ctx context.Context) error
	Status(ctx context.Context) error
	Queue(ctx context.Context) error
	CacheStatus(ctx context.Context) error
	ClearCache(ctx context.Context) error
}

// runREPL starts a simple read–eval–print loop for the ShopKeeper CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn) and accepts commands:
//
//	Not logged in:
//	  - help           — show available commands
//	  - register       — create an account
//	  - login          — authenticate
//	  - list           — list locally cached products
//	  - status         — connectivity, session and queue state
//	  - exit | quit    — leave the program
//
//	Logged in, additionally:
//	  - add            — add a product (works offline)
//	  - update <id>    — change a product
//	  - delete <id>    — remove a product
//	  - sync           — run a sync pass now
//	  - queue          — show pending queued changes
//	  - cache          — show interception cache partitions
//	  - clearcache     — drop the interception cache
//	  - logout         — log out and clear local data
//
// Any errors returned by command handlers are ignored here; handlers should
// report their own errors. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("skpr %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: add, (l)ist, update <id>, delete <id>, sync, status, queue, cache, clearcache, logout, exit")
			} else {
				printlnFn("Available commands: register, login, list, status, exit")
			}

		case "register":
			_ = a.Register(ctx)

		case "login":
			_ = a.Login(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "add":
			_ = a.Add(ctx)

		case "l", "list":
			_ = a.List(ctx)

		case "update":
			if len(args) == 0 {
				printlnFn("Usage: update <id>")
				continue
			}
			_ = a.Update(ctx, args[0])

		case "delete":
			if len(args) == 0 {
				printlnFn("Usage: delete <id>")
				continue
			}
			_ = a.Delete(ctx, args[0])

		case "sync":
			_ = a.Sync(ctx)

		case "status":
			_ = a.Status(ctx)

		case "queue":
			_ = a.Queue(ctx)

		case "cache":
			_ = a.CacheStatus(ctx)

		case "clearcache":
			_ = a.ClearCache(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
