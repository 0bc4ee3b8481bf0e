package cli

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/kith-app/kith/internal/common"
)

// Devices lists pending approval requests and locally known devices.
func (a *App) Devices(ctx context.Context) error {
	requests, err := a.approval.PendingRequests(ctx)
	if err != nil {
		log.Printf("Error: %s", err.Error())
		return err
	}

	if len(requests) > 0 {
		fmt.Println("Pending approval requests:")
		for _, req := range requests {
			fmt.Printf("  %s  %s (%s)\n", req.DeviceID, req.DeviceName, req.DeviceType)
		}
	}

	known, err := a.repos.Devices.ListAll(ctx)
	if err != nil {
		log.Printf("Error: %s", err.Error())
		return err
	}
	for _, dev := range known {
		status := "untrusted"
		if dev.Trusted {
			status = "trusted"
		}
		fmt.Printf("  %s  %s (%s) %s\n", dev.ID, dev.Name, dev.Type, status)
	}
	return nil
}

// Approve releases the content key to a requesting device after the account
// password is re-entered.
func (a *App) Approve(ctx context.Context) error {
	deviceID, err := getSimpleText(a.reader, "Enter device id to approve", os.Stdout)
	if err != nil {
		return err
	}

	fmt.Println("Approving a device releases the account keys to it.")
	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.approval.Approve(ctx, deviceID, password); err != nil {
		log.Printf("Approval unsuccessful: %s", err.Error())
		return err
	}
	fmt.Println("Approved. The device completes enrollment on its next sync.")
	return nil
}

// Revoke withdraws trust from a device.
func (a *App) Revoke(ctx context.Context) error {
	deviceID, err := getSimpleText(a.reader, "Enter device id to revoke", os.Stdout)
	if err != nil {
		return err
	}

	if err := a.approval.Revoke(ctx, deviceID); err != nil {
		log.Printf("Error: %s", err.Error())
		return err
	}
	fmt.Println("Revoked")
	return nil
}
