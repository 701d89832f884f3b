package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"screen/pkg/imageid"
)

func newNewIDCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "newid [id...]",
		Short: "Mint image ids, or print the creation time of existing ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if len(args) > 0 {
				for _, id := range args {
					ts, err := imageid.Timestamp(id)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s\t%s\n", id, ts.Format(time.RFC3339))
				}
				return nil
			}

			if count <= 0 {
				return fmt.Errorf("count must be positive, got %d", count)
			}
			for range count {
				fmt.Fprintln(out, imageid.Generate())
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of ids to mint")

	return cmd
}
