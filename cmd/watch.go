package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/punch/internal/attendance"
	"github.com/Tiliavir/punch/internal/model"
	"github.com/Tiliavir/punch/internal/poller"
)

var watchOtps bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep today's status up to date until interrupted",
	Long: `Poll the server every poll_interval and print a line whenever today's
state changes. Managers can add --otps to also see codes as they are issued.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchOtps, "otps", false, "Also list pending codes (managers only)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx)
	if err != nil {
		fail(err)
	}

	w := &watcher{out: os.Stdout, flow: s.flow, now: s.rec.Now}
	pl := poller.New(s.cfg.PollInterval.Std(), s.flow, s.log.Named("poller"))
	pl.OnRefresh = w.refreshed
	if watchOtps {
		pl.WithOtps(s.client, w.otps)
	}

	fmt.Printf("Watching %s, press Ctrl-C to stop.\n", s.rec.UserID())
	if err := pl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fail(err)
	}
	return nil
}

// viewer is the part of attendance.Flow the watcher reads.
type viewer interface {
	View() attendance.View
}

// watcher prints a line when the derived state or the set of pending codes
// changes.
type watcher struct {
	out  io.Writer
	flow viewer
	now  func() time.Time

	mu       sync.Mutex
	last     string
	failing  bool
	seenOtps map[string]bool
}

func (w *watcher) stamp() string {
	return w.now().In(displayLoc).Format("15:04:05")
}

func (w *watcher) refreshed(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		if !w.failing && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(w.out, "%s  server unreachable, showing last known state\n", w.stamp())
		}
		w.failing = true
		return
	}
	w.failing = false

	v := w.flow.View()
	line := fmt.Sprintf("%s  %s", v.State, v.Status.DisplayStatus)
	if line == w.last {
		return
	}
	w.last = line
	fmt.Fprintf(w.out, "%s  %s\n", w.stamp(), line)
}

func (w *watcher) otps(pending []model.OtpChallenge, err error) {
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	seen := make(map[string]bool, len(pending))
	for _, o := range pending {
		seen[o.ID] = true
		if w.seenOtps[o.ID] {
			continue
		}
		name := o.UserName
		if name == "" {
			name = o.UserID
		}
		fmt.Fprintf(w.out, "%s  %s requested %s, code %s (expires %s)\n",
			w.stamp(), name, o.Action.Label(), o.Code, o.ExpiresAt.In(displayLoc).Format("15:04"))
	}
	w.seenOtps = seen
}
