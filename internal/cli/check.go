package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/swagward/swagward/swagger"
)

func CheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <spec>",
		Short: "Validate a Swagger 2.0 specification file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := swagger.LoadFile(args[0], swagger.Config{ValidateSpec: true})
			if err != nil {
				return fmt.Errorf("checking %s: %w", args[0], err)
			}

			info := doc.Info()
			cmd.PrintErrf("Loaded Swagger 2.0: %s v%s\n", info.Title, info.Version)
			cmd.PrintErrf("  Base path: %s\n", doc.BasePath())
			cmd.PrintErrf("  Operations: %d\n", doc.OperationCount())

			return nil
		},
	}
}
