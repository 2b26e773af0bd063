package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"apex-client/internal/devserver"
)

func newDevServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devserver <project-id>",
		Short: "Start the project's dev server and print its preview URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, _, err := newClient()
			if err != nil {
				return err
			}

			ctrl := devserver.New(client, devserver.Options{})
			url, err := ctrl.PreviewURL(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
}
