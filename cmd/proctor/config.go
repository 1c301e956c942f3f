package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var configValidate bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		if configValidate {
			if len(cfgErrs) > 0 {
				return fmt.Errorf("invalid config: %w", errors.Join(cfgErrs...))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "config ok")
			return nil
		}
		out, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	configCmd.Flags().BoolVar(&configValidate, "validate", false, "only validate the configuration")
}
