package cli

import (
	"context"
	"fmt"
	"log"
	"os"
)

// Conflicts lists records parked for manual resolution, showing both sides.
func (a *App) Conflicts(ctx context.Context) error {
	rows, err := a.records.Conflicts(ctx)
	if err != nil {
		log.Printf("Error: %s", err.Error())
		return err
	}

	if len(rows) == 0 {
		fmt.Println("No records need attention")
		return nil
	}

	for _, rec := range rows {
		fmt.Printf("%s  %s\n  local:  %s\n  remote: %s\n", rec.ID, rec.Kind, rec.Payload, rec.ConflictPayload)
	}
	return nil
}

// Resolve accepts a manual merge for a conflicted record. The merged
// payload becomes a fresh local mutation and syncs like any other.
func (a *App) Resolve(ctx context.Context) error {
	id, err := getSimpleText(a.reader, "Enter record id to resolve", os.Stdout)
	if err != nil {
		return err
	}
	merged, err := GetMultiline(a.reader, "Merged payload (JSON)", os.Stdout)
	if err != nil {
		return err
	}

	if err := a.records.Resolve(ctx, id, []byte(merged)); err != nil {
		log.Printf("Error: %s", err.Error())
		return err
	}
	fmt.Println("Resolved")
	a.engine.Trigger()
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	a.engine.Trigger()
	fmt.Println("Sync requested")
	return nil
}
