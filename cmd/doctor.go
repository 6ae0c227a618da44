package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/joinbridge/internal/config"
	"github.com/nextlevelbuilder/joinbridge/internal/discord"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, bindings file and Discord API access",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(cmd.Context())
		},
	}
}

func runDoctor(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	fmt.Println("joinbridge doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	// Config
	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (not found, using environment)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  Config:   INVALID: %s\n", err)
	}

	// Credentials
	fmt.Println()
	fmt.Println("  Credentials:")
	checkSecret("Bot token", cfg.Discord.BotToken)
	checkSecret("Client ID", cfg.OAuth.ClientID)
	checkSecret("Secret", cfg.OAuth.ClientSecret)
	fmt.Printf("    %-12s %s\n", "Redirect:", valueOr(cfg.OAuth.RedirectURI, "(not configured)"))
	fmt.Printf("    %-12s %s\n", "Auto role:", valueOr(cfg.Join.AutoRoleID, "(none)"))
	fmt.Printf("    %-12s %v\n", "Webhook:", cfg.Join.WebhookURL != "")

	// Bindings
	fmt.Println()
	fmt.Printf("  Bindings: %s", cfg.Store.Path)
	if bindings, err := openBindings(cfg); err != nil {
		fmt.Printf(" (ERROR: %s)\n", err)
	} else {
		fmt.Printf(" (%d bound)\n", bindings.Count())
	}

	// Discord API
	client := discord.NewClient(discord.ClientConfig{APIBase: cfg.Discord.APIBase, BotToken: cfg.Discord.BotToken})
	fmt.Println()
	fmt.Printf("  Discord:  %s", client.APIBase())
	if cfg.Discord.BotToken == "" {
		fmt.Println(" (skipped, no bot token)")
	} else {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if me, err := client.CurrentUser(cctx); err != nil {
			fmt.Printf(" (ERROR: %s)\n", err)
		} else {
			fmt.Printf(" (OK, logged in as %s)\n", me.Username)
		}
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkSecret(name, value string) {
	if value == "" {
		fmt.Printf("    %-12s (not configured)\n", name+":")
		return
	}
	if len(value) > 8 {
		value = value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
	} else {
		value = "****"
	}
	fmt.Printf("    %-12s %s\n", name+":", value)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
