package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"apex-client/pkg/models"
)

func newStartCmd() *cobra.Command {
	var modelName string

	cmd := &cobra.Command{
		Use:   "start <thread-id>",
		Short: "Start an agent run on a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, _, err := newClient()
			if err != nil {
				return err
			}

			// The backend refuses anyway, but failing here gives a clearer
			// message than a 402 from the start endpoint.
			billing, err := client.CheckBillingStatus(cmd.Context())
			if err == nil && !billing.CanRun {
				return fmt.Errorf("account cannot run agents: %s", billing.Message)
			}

			runID, err := client.StartAgent(cmd.Context(), args[0], models.StartAgentRequest{
				ModelName: modelName,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), runID)
			return nil
		},
	}
	cmd.Flags().StringVar(&modelName, "model", "", "model to run (backend default when empty)")
	return cmd
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <run-id>",
		Short: "Stop a running agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, _, err := newClient()
			if err != nil {
				return err
			}
			if err := client.StopAgent(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "stop requested")
			return nil
		},
	}
}

func newBillingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "billing",
		Short: "Show billing status for the current account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, _, err := newClient()
			if err != nil {
				return err
			}
			st, err := client.CheckBillingStatus(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tier:    %s\n", st.Tier)
			fmt.Fprintf(out, "can run: %v\n", st.CanRun)
			if st.Message != "" {
				fmt.Fprintf(out, "note:    %s\n", st.Message)
			}
			fmt.Fprintf(out, "credits: %.2f\n", st.CreditsLeft)
			return nil
		},
	}
}
