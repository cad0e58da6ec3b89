package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nanom-ai/nanom/internal/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive configuration wizard",
		Long:  "Guides you through setting up nanom: enter your Gemini API key and, optionally, the sync backend coordinates.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit()
		},
	}
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("Welcome to the nanom configuration wizard!")
	fmt.Println()

	fmt.Print("Enter your Gemini API key: ")
	apiKey, _ := reader.ReadString('\n')
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}
	if err := config.SaveAPIKeyToFile(apiKey); err != nil {
		return err
	}

	fmt.Print("\nSupabase project URL (empty to skip sync): ")
	supaURL, _ := reader.ReadString('\n')
	supaURL = strings.TrimSpace(supaURL)
	if supaURL != "" {
		fmt.Print("Supabase anon key: ")
		anonKey, _ := reader.ReadString('\n')
		anonKey = strings.TrimSpace(anonKey)
		if err := config.SaveSupabaseToFile(supaURL, anonKey); err != nil {
			return err
		}
	}

	fmt.Printf("\nConfig saved to %s\n", config.DefaultPath())
	fmt.Println("You can now run: nanom")
	return nil
}
