package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newObjectivesCmd(root *rootOptions) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "objectives",
		Short: "List the objectives of the configured course",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			c := cfg.CourseDefinition()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, c.Title)
			for i, o := range c.Objectives {
				fmt.Fprintf(out, "%2d. %s\n", i+1, o.Title)
				if verbose {
					fmt.Fprintf(out, "    %s\n", o.Instruction)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Also print the instruction given to the tutor")
	return cmd
}
