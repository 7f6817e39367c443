package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/soundcore/audiopolicyd/internal/hw"
)

// CreateValidateCmd builds the validate subcommand: parse the audio
// policy and engine configuration documents and report findings.
func CreateValidateCmd() *cobra.Command {
	var policyPath, enginePath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate audio policy configuration files",
		Long:  `Parse the audio policy configuration and engine configuration XML documents and report structural problems without starting the daemon.`,
		Run: func(cmd *cobra.Command, args []string) {
			failed := false

			cfg, err := hw.Load(policyPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "policy configuration: %v\n", err)
				failed = true
			} else {
				ports, devices := 0, 0
				for _, mod := range cfg.Modules {
					ports += len(mod.MixPorts)
					devices += len(mod.DevicePorts)
				}
				fmt.Printf("policy configuration: ok (%d modules, %d mix ports, %d device ports)\n",
					len(cfg.Modules), ports, devices)
			}

			eng, err := hw.LoadEngine(enginePath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "engine configuration: %v\n", err)
				failed = true
			} else {
				fmt.Printf("engine configuration: ok (%d strategies, %d volume groups)\n",
					len(eng.Strategies), len(eng.VolumeGroups))
			}

			if failed {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVar(&policyPath, "policy", "audio_policy_configuration.xml", "Audio policy configuration XML")
	cmd.Flags().StringVar(&enginePath, "engine", "audio_policy_engine_configuration.xml", "Policy engine configuration XML")
	return cmd
}
