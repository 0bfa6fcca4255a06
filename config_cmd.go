package main

import (
	"github.com/spf13/cobra"

	"github.com/tonimelisma/orderdesk/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented default config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigInit,
	}

	cmd.Flags().Bool("force", false, "overwrite an existing config file")

	return cmd
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := cliContextFrom(cmd.Context())

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, cc.Cfg)
	}

	return config.RenderEffective(cc.Cfg, cc.Stdout)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	cc := cliContextFrom(cmd.Context())
	force, _ := cmd.Flags().GetBool("force")

	if err := config.WriteDefault(cc.Cfg.ConfigPath, force); err != nil {
		return err
	}

	cc.Statusf("Wrote %s\n", cc.Cfg.ConfigPath)

	return nil
}
