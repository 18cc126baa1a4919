package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// DefaultAPIURL — адрес API, если не задан --api-url и FLOWLINE_API_URL.
const DefaultAPIURL = "http://localhost:8080"

// NewRootCmd собирает корневую команду flowline.
// engineFn нужен только локальным командам run и validate.
func NewRootCmd(version string, engineFn EngineFunc) *cobra.Command {
	var apiURL string
	var format string
	var out *Output

	rootCmd := &cobra.Command{
		Use:           "flowline",
		Short:         "Flowline CLI — run and manage workflows",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			out, err = NewOutputTo(format, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return err
		},
	}

	defaultURL := os.Getenv("FLOWLINE_API_URL")
	if defaultURL == "" {
		defaultURL = DefaultAPIURL
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL (env FLOWLINE_API_URL)")
	rootCmd.PersistentFlags().StringVarP(&format, "output", "o", "table", "Output format: table or json")

	clientFn := func() *Client { return NewClient(apiURL) }
	outputFn := func() *Output { return out }

	rootCmd.AddCommand(
		NewRunCmd(engineFn, outputFn),
		NewValidateCmd(engineFn, outputFn),
		NewHistoryCmd(outputFn),
		NewWorkflowsCmd(clientFn, outputFn),
		NewRunsCmd(clientFn, outputFn),
		NewSchedulesCmd(clientFn, outputFn),
	)

	return rootCmd
}
