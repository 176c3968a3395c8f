package cli

import "github.com/spf13/cobra"

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "swagward",
		Short:   "Swagward - Swagger 2.0 validation in front of your API",
		Version: "1.0.0",

		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.AddCommand(CheckCommand(), ServeCommand())

	return root
}
