package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func bootstrapCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create Aquarium projects from AYON projects",
	}
	cmd.AddCommand(bootstrapPlanCmd(c))
	cmd.AddCommand(bootstrapRunCmd(c))
	return cmd
}

func bootstrapPlanCmd(c *cli) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "plan <project>",
		Short: "Print the Aquarium import a bootstrap would send, as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := c.startService(ctx)
			if err != nil {
				return err
			}
			defer svc.Stop()

			plan, err := svc.Plan(ctx, args[0], name)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(plan); err != nil {
				return fmt.Errorf("encoding plan: %w", err)
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Aquarium project name, defaults to the AYON project name")
	return cmd
}

func bootstrapRunCmd(c *cli) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "run <project>",
		Short: "Create and pair the Aquarium project now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var (
				key string
				err error
			)
			if remote := c.remoteAddon(); remote != nil {
				key, err = remote.Bootstrap(ctx, args[0], name)
			} else {
				svc, startErr := c.startService(ctx)
				if startErr != nil {
					return startErr
				}
				defer svc.Stop()
				key, err = svc.Bootstrap(ctx, args[0], name)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Aquarium project name, defaults to the AYON project name")
	return cmd
}
