package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for a name, email and password and creates an account.
// Registration requires connectivity; offline attempts fail with
// common.ErrNetworkUnavailable.
func (a *App) Register(ctx context.Context) error {
	name, err := getSimpleText(a.reader, "Enter name", os.Stdout)
	if err != nil {
		return err
	}

	email, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}

	if err := a.api.Register(ctx, name, email, string(password)); err != nil {
		if errors.Is(err, common.ErrNetworkUnavailable) {
			fmt.Println("Registration needs a network connection, try again when online.")
			return err
		}
		fmt.Println("Registration failed:", err)
		return err
	}

	fmt.Println("Success! You can log in now.")
	return nil
}

// Login prompts for credentials, authenticates against the remote API and
// persists the received token in the local store so the session survives
// restarts. Login is an online-only operation.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}

	token, err := a.api.Login(ctx, email, string(password))
	if err != nil {
		if errors.Is(err, common.ErrNetworkUnavailable) {
			fmt.Println("Login needs a network connection, try again when online.")
		} else {
			fmt.Println("Login failed:", err)
		}
		return err
	}

	if err := a.tokens.Save(ctx, token); err != nil {
		return err
	}
	if err := a.store.SetSetting(ctx, SettingUserName, email); err != nil {
		return err
	}

	a.userName = email
	fmt.Println("Logged in as", email)
	return nil
}

// Logout removes the persisted session and every locally cached record,
// including unsynced drafts. The user is warned by the caller before
// invoking this.
func (a *App) Logout(ctx context.Context) error {
	if err := a.store.ClearAll(ctx); err != nil {
		return err
	}
	a.userName = ""
	fmt.Println("Logged out, local data cleared.")
	return nil
}

// restoreSession picks up a persisted login after a restart.
func (a *App) restoreSession(ctx context.Context) {
	var name string
	if ok, err := a.store.GetSetting(ctx, SettingUserName, &name); err == nil && ok {
		a.userName = name
	}
}
