package cli

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/kith-app/kith/internal/client/models"
)

// parseKind maps a user-entered kind name; empty input means persons.
func parseKind(s string) (models.Kind, bool) {
	switch s {
	case "", "person", "people":
		return models.KindPerson, true
	case "note", "notes":
		return models.KindNote, true
	case "group", "groups":
		return models.KindGroup, true
	case "action", "actions":
		return models.KindActionItem, true
	default:
		return "", false
	}
}

func (a *App) List(ctx context.Context) error {
	kindName, err := getSimpleText(a.reader, "Kind (person/note/group/action, default person)", os.Stdout)
	if err != nil {
		return err
	}
	kind, ok := parseKind(kindName)
	if !ok {
		printlnFn("Unknown kind:", kindName)
		return nil
	}

	rows, err := a.records.List(ctx, kind)
	if err != nil {
		log.Printf("Error: %s", err.Error())
		return err
	}

	for _, row := range rows {
		fmt.Printf("%s  %-12s %s\n", row.ID, row.Kind, row.Title)
	}
	return nil
}

func (a *App) Show(ctx context.Context) error {
	id, err := getSimpleText(a.reader, "Enter record id to show", os.Stdout)
	if err != nil {
		return err
	}

	v, err := a.records.Show(ctx, id)
	if err != nil {
		log.Printf("Error: %s", err.Error())
		return err
	}

	fmt.Printf("%+v\n", v)
	return nil
}

func (a *App) Delete(ctx context.Context) error {
	id, err := getSimpleText(a.reader, "Enter record id to delete", os.Stdout)
	if err != nil {
		return err
	}

	if err := a.records.Delete(ctx, id); err != nil {
		log.Printf("Error: %s", err.Error())
		return err
	}
	fmt.Println("Deleted")
	return nil
}
