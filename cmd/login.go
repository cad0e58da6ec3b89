package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nanom-ai/nanom/internal/cloud"
	"github.com/nanom-ai/nanom/internal/config"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in to the sync backend and merge remote data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin()
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.SaveAccountToFile(config.AccountConfig{}); err != nil {
				return err
			}
			fmt.Println("Signed out. Local data is untouched.")
			return nil
		},
	}
}

func runLogin() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)

	fmt.Print("User ID: ")
	userID, _ := reader.ReadString('\n')
	userID = strings.TrimSpace(userID)

	fmt.Print("Access token: ")
	token, _ := reader.ReadString('\n')
	token = strings.TrimSpace(token)

	if email == "" || userID == "" || token == "" {
		return fmt.Errorf("email, user ID, and access token are all required")
	}

	acct := config.AccountConfig{UserID: userID, Email: email, AccessToken: token}
	if err := config.SaveAccountToFile(acct); err != nil {
		return err
	}

	// Run the sign-in reconciliation now so the first chat after login
	// already sees remote sessions.
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	id := cloud.Identity{UserID: userID, Email: email, AccessToken: token}
	if err := a.pipeline.SignIn(ctx, id); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	fmt.Printf("Signed in as %s. %d session(s) available.\n", email, len(a.pipeline.Sessions()))
	return nil
}
