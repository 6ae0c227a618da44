package cmd

import (
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/nextlevelbuilder/joinbridge/internal/store"
)

// filterThreshold: enable type-to-filter only when there are more than this many users.
const filterThreshold = 5

// runPrompt shows a single huh field with help hints at the bottom.
func runPrompt(field huh.Field) error {
	return huh.NewForm(huh.NewGroup(field)).WithShowHelp(true).Run()
}

// selectBoundUser shows the bound users and returns the chosen ID.
func selectBoundUser(users []store.BoundUser) (string, error) {
	var id string

	opts := make([]huh.Option[string], 0, len(users))
	for _, u := range users {
		opts = append(opts, huh.NewOption(fmt.Sprintf("%s (%s)", u.Username, u.ID), u.ID))
	}

	sel := huh.NewSelect[string]().
		Title("Select a user to unbind").
		Options(opts...).
		Value(&id)
	if len(users) > filterThreshold {
		sel = sel.Filtering(true)
	}

	if err := runPrompt(sel); err != nil {
		return "", err
	}
	return id, nil
}

// confirmUnbind asks before a binding is removed. Defaults to no.
func confirmUnbind(u store.BoundUser) (bool, error) {
	var ok bool
	c := huh.NewConfirm().
		Title(fmt.Sprintf("Unbind %s (%s)?", u.Username, u.ID)).
		Description("Their stored access token is deleted; they must authorize again to rejoin.").
		Affirmative("Unbind").
		Negative("Keep").
		Value(&ok)

	if err := runPrompt(c); err != nil {
		return false, err
	}
	return ok, nil
}
