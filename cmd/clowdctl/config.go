package main

import (
	"fmt"
	"strconv"

	"github.com/danmuck/clowdctl/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the clowdctl config file",
	}
	cmd.AddCommand(newConfigInitCmd(a), newConfigValidateCmd(a))
	return cmd
}

func newConfigInitCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.WriteTemplate(a.cfgPath, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", a.cfgPath)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func newConfigValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file and print the resolved settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.cfgPath)
			if err != nil {
				return err
			}
			login := "(none)"
			if cfg.Login.Username != "" {
				login = cfg.Login.Username
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s is valid\n", a.cfgPath)
			printPairs(out, [][2]string{
				{"Address", cfg.Address},
				{"Log level", cfg.LogLevel},
				{"TLS", strconv.FormatBool(cfg.Session.TLS.Enabled)},
				{"Idle timeout", cfg.Session.IdleTimeout.String()},
				{"Login", login},
			})
			return nil
		},
	}
}
