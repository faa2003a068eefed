// Package cli provides the interactive liusync command-line client.
//
// It wires configuration, the local store, the transport and the sync
// services, restores or establishes a session and then runs a REPL while the
// sync engine works in the background.
//
// Key features:
//   - Login with an emailed code / Logout
//   - Add, edit, remove, restore and purge content
//   - Toggle cloud sync per item
//   - Load kanban columns and move items between and within them
//   - Autosave drafts
//
// The REPL is started via App.Run(ctx), which blocks until the user exits or
// ctx is cancelled.
package cli
