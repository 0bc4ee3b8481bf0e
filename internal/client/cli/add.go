package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/kith-app/kith/internal/client/models"
)

func (a *App) AddPerson(ctx context.Context) error {
	firstName, err := getSimpleText(a.reader, "First name", os.Stdout)
	if err != nil {
		return err
	}
	lastName, err := getSimpleText(a.reader, "Last name", os.Stdout)
	if err != nil {
		return err
	}
	email, err := getSimpleText(a.reader, "Email", os.Stdout)
	if err != nil {
		return err
	}
	tags, err := getSimpleText(a.reader, "Tags (comma separated, optional)", os.Stdout)
	if err != nil {
		return err
	}

	person := models.Person{FirstName: firstName, LastName: lastName, Email: email}
	if tags != "" {
		for _, tag := range strings.Split(tags, ",") {
			person.Tags = append(person.Tags, strings.TrimSpace(tag))
		}
	}

	id, err := a.records.Add(ctx, person)
	if err != nil {
		log.Printf("Error: %s", err.Error())
		return err
	}
	fmt.Printf("Added person %s\n", id)
	return nil
}

func (a *App) AddNote(ctx context.Context) error {
	personID, err := getSimpleText(a.reader, "Person id (optional)", os.Stdout)
	if err != nil {
		return err
	}
	title, err := getSimpleText(a.reader, "Title", os.Stdout)
	if err != nil {
		return err
	}
	body, err := GetMultiline(a.reader, "Note body", os.Stdout)
	if err != nil {
		return err
	}

	id, err := a.records.Add(ctx, models.Note{PersonID: personID, Title: title, Body: body})
	if err != nil {
		log.Printf("Error: %s", err.Error())
		return err
	}
	fmt.Printf("Added note %s\n", id)
	return nil
}

func (a *App) AddGroup(ctx context.Context) error {
	name, err := getSimpleText(a.reader, "Group name", os.Stdout)
	if err != nil {
		return err
	}
	members, err := getSimpleText(a.reader, "Member ids (comma separated, optional)", os.Stdout)
	if err != nil {
		return err
	}

	group := models.Group{Name: name}
	if members != "" {
		for _, id := range strings.Split(members, ",") {
			group.MemberIDs = append(group.MemberIDs, strings.TrimSpace(id))
		}
	}

	id, err := a.records.Add(ctx, group)
	if err != nil {
		log.Printf("Error: %s", err.Error())
		return err
	}
	fmt.Printf("Added group %s\n", id)
	return nil
}

func (a *App) AddAction(ctx context.Context) error {
	personID, err := getSimpleText(a.reader, "Person id (optional)", os.Stdout)
	if err != nil {
		return err
	}
	description, err := getSimpleText(a.reader, "Description", os.Stdout)
	if err != nil {
		return err
	}
	due, err := getSimpleText(a.reader, "Due date YYYY-MM-DD (optional)", os.Stdout)
	if err != nil {
		return err
	}

	item := models.ActionItem{PersonID: personID, Description: description}
	if due != "" {
		dueAt, err := time.Parse("2006-01-02", due)
		if err != nil {
			log.Printf("Error: invalid date %q", due)
			return err
		}
		item.DueAt = &dueAt
	}

	id, err := a.records.Add(ctx, item)
	if err != nil {
		log.Printf("Error: %s", err.Error())
		return err
	}
	fmt.Printf("Added action item %s\n", id)
	return nil
}
