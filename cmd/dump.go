package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/soundcore/audiopolicyd/internal/hw"
)

// CreateDumpCmd builds the dump subcommand: load the configuration
// documents and print the parsed port, route and strategy tables.
func CreateDumpCmd() *cobra.Command {
	var policyPath, enginePath string

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the parsed configuration tables",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := hw.Load(policyPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "policy configuration: %v\n", err)
				os.Exit(1)
			}

			for _, mod := range cfg.Modules {
				fmt.Printf("module %s\n", mod.Name)
				for _, mp := range mod.MixPorts {
					fmt.Printf("  mix port %-24s %s", mp.Name, mp.Role)
					if mp.Role == hw.RoleSource && mp.OutputFlags != 0 {
						fmt.Printf(" flags=%v", mp.OutputFlags)
					}
					if mp.Role == hw.RoleSink && mp.InputFlags != 0 {
						fmt.Printf(" flags=%v", mp.InputFlags)
					}
					fmt.Printf(" profiles=%d\n", len(mp.Profiles))
				}
				for _, dp := range mod.DevicePorts {
					fmt.Printf("  device port %-20s %s %s\n", dp.TagName, dp.Role, dp.Type)
				}
				for _, r := range mod.Routes {
					fmt.Printf("  route %v -> %s\n", r.Sources, r.Sink)
				}
			}

			eng, err := hw.LoadEngine(enginePath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "engine configuration: %v\n", err)
				os.Exit(1)
			}

			fmt.Println("strategies")
			for _, st := range eng.Strategies {
				fmt.Printf("  %-28s group=%s rules=%d\n", st.Name, st.VolumeGroup, len(st.Rules))
			}
			fmt.Println("volume groups")
			for _, g := range eng.VolumeGroups {
				fmt.Printf("  %-16s [%d..%d] streams=%d\n", g.Name, g.IndexMin, g.IndexMax, len(g.Streams))
			}
		},
	}

	cmd.Flags().StringVar(&policyPath, "policy", "audio_policy_configuration.xml", "Audio policy configuration XML")
	cmd.Flags().StringVar(&enginePath, "engine", "audio_policy_engine_configuration.xml", "Policy engine configuration XML")
	return cmd
}
