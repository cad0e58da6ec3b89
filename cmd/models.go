package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List Gemini models available for generation",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			names, err := a.invoker.ListModels(ctx)
			if err != nil {
				return fmt.Errorf("list models: %w", err)
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
}
