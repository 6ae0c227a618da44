package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/joinbridge/internal/store"
)

func boundCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bound",
		Short: "Inspect and edit bound users (stop the bot first)",
	}
	cmd.AddCommand(boundListCmd())
	cmd.AddCommand(boundUnbindCmd())
	return cmd
}

type boundEntry struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	HasToken bool   `json:"hasToken"`
}

func boundListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List bound users",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfigOrExit()
			bindings, err := openBindings(cfg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			printBoundUsers(os.Stdout, bindings.All(), jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

// printBoundUsers writes users as a table or JSON. Tokens are never printed.
func printBoundUsers(w io.Writer, users []store.BoundUser, jsonOutput bool) {
	entries := make([]boundEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, boundEntry{ID: u.ID, Username: u.Username, HasToken: u.AccessToken != ""})
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	if len(entries) == 0 {
		fmt.Fprintln(w, "No users bound.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tUSERNAME\tTOKEN\n")
	for _, e := range entries {
		token := "missing"
		if e.HasToken {
			token = "ok"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.ID, e.Username, token)
	}
	tw.Flush()
}

func boundUnbindCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "unbind [id]",
		Short: "Remove a bound user (interactive if no id given)",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfigOrExit()
			bindings, err := openBindings(cfg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}

			var id string
			if len(args) == 1 {
				id = args[0]
			} else {
				id = boundInteractiveSelect(bindings.All())
				if id == "" {
					return
				}
			}

			u, ok := bindings.Find(id)
			if !ok {
				fmt.Println("User not found.")
				os.Exit(1)
			}

			if !yes {
				confirmed, err := confirmUnbind(u)
				if err != nil || !confirmed {
					fmt.Println("Cancelled.")
					return
				}
			}

			if _, err := bindings.Remove(id); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			fmt.Printf("Unbound %s\n", id)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

// boundInteractiveSelect lets the operator pick a bound user. Returns "" if
// there is nothing to pick or the prompt was cancelled.
func boundInteractiveSelect(users []store.BoundUser) string {
	if len(users) == 0 {
		fmt.Println("No users bound.")
		return ""
	}
	id, err := selectBoundUser(users)
	if err != nil {
		fmt.Println("Cancelled.")
		return ""
	}
	return id
}
