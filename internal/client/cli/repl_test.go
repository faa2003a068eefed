package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeExec struct {
	loggedIn bool
	calls    []string
	err      error
}

func (f *fakeExec) record(s string) error {
	f.calls = append(f.calls, s)
	return f.err
}

func (f *fakeExec) isLoggedIn() bool { return f.loggedIn }
func (f *fakeExec) Login(context.Context) error {
	f.loggedIn = true
	return f.record("login")
}
func (f *fakeExec) Logout(context.Context) error {
	f.loggedIn = false
	return f.record("logout")
}
func (f *fakeExec) Add(context.Context) error               { return f.record("add") }
func (f *fakeExec) Edit(_ context.Context, id string) error { return f.record("edit " + id) }
func (f *fakeExec) List(_ context.Context, cols []string) error {
	return f.record("list " + strings.Join(cols, ","))
}
func (f *fakeExec) Move(_ context.Context, args []string) error {
	return f.record("move " + strings.Join(args, " "))
}
func (f *fakeExec) SetSync(_ context.Context, id string, on bool) error {
	return f.record(fmt.Sprintf("sync %s %v", id, on))
}
func (f *fakeExec) Remove(_ context.Context, id string) error  { return f.record("remove " + id) }
func (f *fakeExec) Restore(_ context.Context, id string) error { return f.record("restore " + id) }
func (f *fakeExec) Purge(_ context.Context, id string) error   { return f.record("purge " + id) }
func (f *fakeExec) Draft(_ context.Context, args []string) error {
	return f.record("draft " + strings.Join(args, " "))
}
func (f *fakeExec) Status(context.Context) error { return f.record("status") }

// capturePrintln collects user-facing output for the duration of the test.
func capturePrintln(t *testing.T) func() []string {
	t.Helper()
	var (
		mu    sync.Mutex
		lines []string
	)
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, strings.TrimSpace(fmt.Sprintln(a...)))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), lines...)
	}
}

func run(exec execIface, lines ...string) {
	sc := bufio.NewScanner(strings.NewReader(strings.Join(lines, "\n")))
	runREPL(context.Background(), exec, func() string { return "status" }, sc)
}

func TestRunREPL_Dispatch(t *testing.T) {
	capturePrintln(t)
	exec := &fakeExec{}

	run(exec,
		"help",
		"add",
		"login",
		"add",
		"edit c1",
		"l TODO DONE",
		"move c1 TODO 0",
		"sync c1 off",
		"remove c1",
		"restore c1",
		"purge c1",
		"draft",
		"draft post",
		"status",
		"logout",
		"exit",
		"add",
	)

	assert.Equal(t, []string{
		"login",
		"add",
		"edit c1",
		"list TODO,DONE",
		"move c1 TODO 0",
		"sync c1 false",
		"remove c1",
		"restore c1",
		"purge c1",
		"draft ",
		"draft post",
		"status",
		"logout",
	}, exec.calls)
}

func TestRunREPL_UsageAndErrors(t *testing.T) {
	out := capturePrintln(t)
	exec := &fakeExec{loggedIn: true, err: errors.New("boom")}

	run(exec, "edit", "sync c1 maybe", "frobnicate", "remove c1", "quit")

	assert.Equal(t, []string{"remove c1"}, exec.calls)
	lines := out()
	assert.Contains(t, lines, "Usage: edit <id>")
	assert.Contains(t, lines, "Usage: sync <id> on|off")
	assert.Contains(t, lines, "Unknown command: frobnicate")
	assert.Contains(t, lines, "Error: boom")
	assert.Contains(t, lines, "Bye!")
}

func TestRunREPL_StopsOnCancelledContext(t *testing.T) {
	capturePrintln(t)
	exec := &fakeExec{loggedIn: true}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sc := bufio.NewScanner(strings.NewReader("status\n"))
	runREPL(ctx, exec, func() string { return "" }, sc)
	assert.Empty(t, exec.calls)
}
