package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

var otpsCmd = &cobra.Command{
	Use:   "otps",
	Short: "List pending clock-in/out codes (managers only)",
	Args:  cobra.NoArgs,
	RunE:  runOtps,
}

func runOtps(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		fail(err)
	}

	pending, err := s.client.FetchPendingOtps(ctx)
	if err != nil {
		fail(err)
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	if err := outputResult(os.Stdout, OtpsResult{Pending: pending}, outputFormat); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return nil
}
