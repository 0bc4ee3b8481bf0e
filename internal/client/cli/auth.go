package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/kith-app/kith/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for credentials and creates a brand new account with
// this device as its first. The recovery phrases are printed exactly once;
// after this moment only their hashes exist anywhere.
func (a *App) Register(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	phrases, err := a.authService.Register(ctx, userName, password)
	if err != nil {
		log.Printf("Registration unsuccessful: %s", err.Error())
		return err
	}

	fmt.Println("Success! Write down your recovery keys, they will not be shown again:")
	for i, phrase := range phrases {
		fmt.Printf("  %2d. %s\n", i+1, phrase)
	}

	a.userName = userName
	a.loggedIn = true
	a.setMode(ModeOnline)
	a.engine.Trigger()
	return nil
}

// Join enrolls this device into an existing account: it provisions local
// key material, logs in, and files a device approval request. Confidential
// records stay unreadable until another device approves.
func (a *App) Join(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}
	deviceName, err := getSimpleText(a.reader, "Enter a name for this device", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.authService.RegisterJoining(ctx, userName, password); err != nil {
		log.Printf("Join unsuccessful: %s", err.Error())
		return err
	}

	deviceID, err := a.approval.BeginApproval(ctx, deviceName, "cli")
	if err != nil {
		log.Printf("Device enrollment unsuccessful: %s", err.Error())
		return err
	}

	fmt.Printf("Approval requested as device %s. Approve it from a trusted device, then run 'sync'.\n", deviceID)

	a.userName = userName
	a.loggedIn = true
	a.setMode(ModeOnline)
	return nil
}

// Login prompts the user for credentials and tries to authenticate.
//
// The method first attempts an online login. If the server is unavailable,
// it falls back to offline login against locally cached key material. On
// success the connectivity Mode is updated:
//   - ModeOnline if online login succeeds,
//   - ModeOffline if offline login succeeds,
//   - ModeDisabled if both fail.
func (a *App) Login(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	var mode Mode

	err = a.authService.OnlineLogin(ctx, userName, password)
	if err != nil {
		if errors.Is(err, common.ErrUnavailable) {
			log.Printf("Server unavailable, trying offline login...")
			if err := a.authService.OfflineLogin(ctx, userName, password); err != nil {
				log.Printf("Offline login unsuccessful: %s", err.Error())
				mode = ModeDisabled
			} else {
				log.Printf("Offline login successful")
				mode = ModeOffline
			}
		} else {
			log.Printf("Login unsuccessful: %s", err.Error())
			a.setMode(ModeDisabled)
			return nil
		}
	} else {
		log.Printf("Login successful")
		mode = ModeOnline
	}

	if mode == ModeOnline || mode == ModeOffline {
		a.userName = userName
		a.loggedIn = true
	}
	a.setMode(mode)

	if mode == ModeOnline {
		a.engine.Trigger()
	}

	// a device still waiting for approval may have its wrapped key by now
	if a.loggedIn && !a.vault.HasContentKey() && mode == ModeOnline {
		if err := a.approval.CompleteApproval(ctx); err == nil {
			log.Printf("Device approval completed, confidential records unlocked")
		}
	}
	return nil
}

// Logout locks the vault and drops the session. Locally cached data stays
// so the next login can run offline.
func (a *App) Logout(ctx context.Context) error {
	a.authService.Logout(ctx)
	a.userName = ""
	a.loggedIn = false
	return nil
}
