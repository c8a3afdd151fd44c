package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"cli-auth/internal/config"
	"cli-auth/internal/state"
)

func newStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which installer versions were installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath, nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			st := state.LoadState(cfg.StatePath)
			if len(st.Installs) == 0 {
				fmt.Fprintln(out, "Nothing installed yet. Run `cli-auth login` to get started.")
				return nil
			}

			channels := make([]string, 0, len(st.Installs))
			for ch := range st.Installs {
				channels = append(channels, ch)
			}
			sort.Strings(channels)
			for _, ch := range channels {
				rec := st.Installs[ch]
				fmt.Fprintf(out, "%-10s %-12s installed %s\n", ch, rec.Version, rec.InstalledAt.UTC().Format("2006-01-02 15:04 MST"))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	return cmd
}
