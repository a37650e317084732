package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Tiliavir/punch/internal/attendance"
	"github.com/Tiliavir/punch/internal/model"
	"github.com/Tiliavir/punch/internal/poller"
	"github.com/Tiliavir/punch/internal/timecalc"
)

var (
	inOtp  string
	outOtp string
)

var inCmd = &cobra.Command{
	Use:   "in",
	Short: "Clock in for today",
	Long: `Ask the server for a clock-in code, then enter the code your manager
gives you. Without --otp the code is prompted for until it is accepted or you
press Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: runIn,
}

var outCmd = &cobra.Command{
	Use:   "out",
	Short: "Clock out for today",
	Args:  cobra.NoArgs,
	RunE:  runOut,
}

func init() {
	inCmd.Flags().StringVar(&inOtp, "otp", "", "Code from your manager (skips the prompt)")
	outCmd.Flags().StringVar(&outOtp, "otp", "", "Code from your manager (skips the prompt)")
}

func runIn(cmd *cobra.Command, args []string) error {
	return runTransition(model.ActionClockIn, inOtp)
}

func runOut(cmd *cobra.Command, args []string) error {
	return runTransition(model.ActionClockOut, outOtp)
}

func runTransition(action model.Action, otp string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx)
	if err != nil {
		fail(err)
	}
	if err := s.flow.Refresh(ctx); err != nil {
		s.log.Warn("refresh before transition failed", zap.Error(err))
	}

	if _, err := s.flow.Begin(ctx, action); err != nil {
		fail(err)
	}

	var lines <-chan string
	if otp != "" {
		one := make(chan string, 1)
		one <- otp
		close(one)
		lines = one
	} else {
		fmt.Printf("A %s code was requested. Ask your manager for it.\n", action.Label())
		pl := poller.New(s.cfg.PollInterval.Std(), s.flow, s.log.Named("poller"))
		defer pl.Start(ctx)()
		lines = readLines(os.Stdin, os.Stdout, "Code: ")
	}

	rec, err := enterCode(ctx, s.flow, lines, os.Stdout)
	if err != nil {
		if s.flow.Cancel() {
			fmt.Println("Cancelled.")
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, errNoMoreInput) {
			os.Exit(1)
		}
		fail(err)
	}
	printTransition(os.Stdout, action, rec)
	return nil
}

// codeSubmitter is the part of attendance.Flow that code entry needs.
type codeSubmitter interface {
	Submit(ctx context.Context, otp string) (*model.AttendanceDay, error)
	Current() *model.Challenge
}

// errNoMoreInput is returned when the input ends before a code is accepted.
var errNoMoreInput = errors.New("no code entered")

// enterCode submits lines until one is accepted. Rejected codes are reported
// on out and the next line is tried while the challenge stays open.
func enterCode(ctx context.Context, flow codeSubmitter, lines <-chan string, out io.Writer) (*model.AttendanceDay, error) {
	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case line, ok = <-lines:
		}
		if !ok {
			return nil, errNoMoreInput
		}

		rec, err := flow.Submit(ctx, line)
		if err == nil {
			return rec, nil
		}

		var cerr *attendance.ChallengeError
		switch {
		case errors.Is(err, attendance.ErrEmptyOtp), errors.Is(err, attendance.ErrMalformedOtp):
			fmt.Fprintln(out, "Enter the code as shown, without spaces.")
		case errors.As(err, &cerr):
			if flow.Current() == nil {
				return nil, err
			}
			fmt.Fprintln(out, cerr.Message())
		default:
			return nil, err
		}
	}
}

// readLines prompts on out and sends each line of in. The channel is closed
// when in ends.
func readLines(in io.Reader, out io.Writer, label string) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(in)
		for {
			fmt.Fprint(out, label)
			if !sc.Scan() {
				return
			}
			ch <- sc.Text()
		}
	}()
	return ch
}

func printTransition(out io.Writer, action model.Action, rec *model.AttendanceDay) {
	if action == model.ActionClockIn {
		fmt.Fprintf(out, "Clocked in at %s (%s).\n", clockTime(rec.ClockInTime), attendance.DisplayStatusOf(*rec))
		return
	}
	fmt.Fprintf(out, "Clocked out at %s (%s).\n", clockTime(rec.ClockOutTime), attendance.DisplayStatusOf(*rec))
	if worked, ok := rec.Worked(); ok {
		fmt.Fprintf(out, "Worked today: %s (%s)\n", formatElapsed(int64(worked.Seconds())), timecalc.FormatDurationHHMMSS(int64(worked.Seconds())))
	}
}

// formatElapsed returns a human-friendly elapsed time string.
func formatElapsed(seconds int64) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
