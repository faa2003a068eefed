package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Add(ctx context.Context) error
	Edit(ctx context.Context, id string) error
	List(ctx context.Context, columns []string) error
	Move(ctx context.Context, args []string) error
	SetSync(ctx context.Context, id string, on bool) error
	Remove(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
	Purge(ctx context.Context, id string) error
	Draft(ctx context.Context, args []string) error
	Status(ctx context.Context) error
}

// runREPL starts a simple read–eval–print loop for the liusync CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. The loop exits on scanner EOF,
// when ctx is done or when the user types "exit" or "quit".
//
//	Not logged in:
//	  - help                    : show available commands
//	  - login                   : sign in with an emailed code
//	  - exit | quit             : leave the program
//
//	Logged in:
//	  - add                     : add a note
//	  - edit <id>               : replace a note's text
//	  - (l)ist [column...]      : load and show board columns
//	  - move <id> <column> <i>  : place an item at position i of a column
//	  - sync <id> on|off        : toggle cloud sync for an item
//	  - remove | restore <id>   : move an item to or out of the trash
//	  - purge <id>              : delete a trashed item permanently
//	  - draft [post|discard]    : autosave, post or drop the current draft
//	  - status                  : pending uploads and counters
//	  - logout                  : sign out on this device
//
// Command errors are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for ctx.Err() == nil {
		printlnFn(fmt.Sprintf("liu %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		if cmd == "exit" || cmd == "quit" {
			printlnFn("Bye!")
			return
		}
		report(dispatch(ctx, a, cmd, args))
	}
}

func report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		printlnFn("Usage:", strings.TrimPrefix(err.Error(), errUsage.Error()+": "))
	default:
		printlnFn("Error:", err)
	}
}

func needID(args []string, usage string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("%w: %s", errUsage, usage)
	}
	return args[0], nil
}

func dispatch(ctx context.Context, a execIface, cmd string, args []string) error {
	if cmd == "help" {
		if a.isLoggedIn() {
			printlnFn("Available commands: add, edit, (l)ist, move, sync, remove, restore, purge, draft, status, logout, exit")
		} else {
			printlnFn("Available commands: login, exit")
		}
		return nil
	}
	if cmd == "login" {
		return a.Login(ctx)
	}
	if !a.isLoggedIn() {
		if knownCommand(cmd) {
			printlnFn("Please login first")
			return nil
		}
		printlnFn("Unknown command:", cmd)
		return nil
	}

	switch cmd {
	case "logout":
		return a.Logout(ctx)
	case "add":
		return a.Add(ctx)
	case "edit":
		id, err := needID(args, "edit <id>")
		if err != nil {
			return err
		}
		return a.Edit(ctx, id)
	case "l", "list":
		return a.List(ctx, args)
	case "move":
		return a.Move(ctx, args)
	case "sync":
		if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
			return fmt.Errorf("%w: sync <id> on|off", errUsage)
		}
		return a.SetSync(ctx, args[0], args[1] == "on")
	case "remove":
		id, err := needID(args, "remove <id>")
		if err != nil {
			return err
		}
		return a.Remove(ctx, id)
	case "restore":
		id, err := needID(args, "restore <id>")
		if err != nil {
			return err
		}
		return a.Restore(ctx, id)
	case "purge":
		id, err := needID(args, "purge <id>")
		if err != nil {
			return err
		}
		return a.Purge(ctx, id)
	case "draft":
		return a.Draft(ctx, args)
	case "status":
		return a.Status(ctx)
	default:
		printlnFn("Unknown command:", cmd)
		return nil
	}
}

func knownCommand(cmd string) bool {
	switch cmd {
	case "logout", "add", "edit", "l", "list", "move", "sync", "remove", "restore", "purge", "draft", "status":
		return true
	}
	return false
}
