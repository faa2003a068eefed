package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/liusync/internal/common"
)

// getSimpleText and getSecret are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getSecret = GetSecret

// Login runs the email-code flow: handshake, code request, code entry. On
// success the sync engine starts for the new session.
func (a *App) Login(ctx context.Context) error {
	if err := a.auth.Init(ctx); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	if err := a.auth.RequestEmailCode(ctx, email); err != nil {
		return fmt.Errorf("request code: %w", err)
	}

	code, err := getSecret(a.out, "Enter the code sent to "+email)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(code)

	creds, err := a.auth.LoginWithEmailCode(ctx, email, string(code))
	if err != nil {
		a.logger.Warn(ctx, "login unsuccessful", "error", err)
		return err
	}

	a.signedIn(ctx, creds.UserID)
	printlnFn("Login successful")
	return nil
}

// Logout stops syncing and forgets the session on this device. Pending
// uploads stay queued for the next login.
func (a *App) Logout(ctx context.Context) error {
	a.signedOut(ctx)
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	printlnFn("Logged out")
	return nil
}
