package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/punch/internal/gateway"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show today's attendance status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openSession(ctx)
	if err != nil {
		fail(err)
	}

	// Without the server the locally stored flags are still shown.
	stale := false
	if err := s.flow.Refresh(ctx); err != nil {
		if gateway.IsUnauthorized(err) {
			fail(err)
		}
		fmt.Fprintf(os.Stderr, "Warning: could not reach the server: %v\n", err)
		stale = true
	}

	result := StatusResult{
		UserID: s.rec.UserID(),
		Date:   s.rec.Today(),
		Stale:  stale,
		View:   s.flow.View(),
		Record: s.rec.Record(),
	}
	if err := outputResult(os.Stdout, result, outputFormat); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return nil
}
