package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/Tiliavir/punch/internal/attendance"
	"github.com/Tiliavir/punch/internal/config"
	"github.com/Tiliavir/punch/internal/gateway"
	"github.com/Tiliavir/punch/internal/storage"
)

// displayLoc is the zone times are printed in. openSession sets it from config.
var displayLoc = time.Local

// session is everything a command needs to talk to the server for one user.
type session struct {
	cfg    config.Config
	log    *zap.Logger
	base   string
	client *gateway.Client
	rec    *attendance.Reconciler
	flow   *attendance.Flow
}

// loadBase reads the config and builds the logger.
func loadBase() (config.Config, *zap.Logger, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, "", err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, "", err
	}
	base, err := storage.BaseDir()
	if err != nil {
		return config.Config{}, nil, "", err
	}
	return cfg, logger, base, nil
}

// openSession wires config, token, gateway client, local cache, reconciler
// and flow together.
func openSession(ctx context.Context) (*session, error) {
	cfg, logger, base, err := loadBase()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	displayLoc = loc

	store := gateway.NewTokenStore(base)
	oauthCfg := gateway.OAuthConfig(cfg.API.TokenURL, cfg.API.ClientID)
	ts, tok, err := gateway.TokenSource(ctx, oauthCfg, store)
	if err != nil {
		return nil, err
	}

	userID := cfg.UserID
	if userID == "" {
		userID, err = gateway.UserIDFromToken(tok)
		if err != nil {
			return nil, fmt.Errorf("cannot determine user id, set user_id in the config: %w", err)
		}
	}

	client := gateway.NewClient(oauth2.NewClient(ctx, ts), cfg.API.BaseURL, logger.Named("gateway"))
	rec := attendance.NewReconciler(userID, client, storage.NewCache(base), logger.Named("reconciler"),
		attendance.WithLocation(loc))
	flow := attendance.NewFlow(rec, cfg.SubmitTimeout.Std(), logger.Named("flow"))

	logger.Debug("session opened", zap.String("user", userID), zap.String("base_url", cfg.API.BaseURL), zap.String("timezone", loc.String()))
	return &session{cfg: cfg, log: logger, base: base, client: client, rec: rec, flow: flow}, nil
}

// exitCode classifies err: 1 for anything the user can fix, 2 for storage and
// transport problems.
func exitCode(err error) int {
	var cerr *attendance.ChallengeError
	switch {
	case errors.As(err, &cerr):
		if errors.Is(err, attendance.ErrTransport) || errors.Is(err, attendance.ErrSubmitTimeout) {
			return 2
		}
		return 1
	case errors.Is(err, gateway.ErrNotLoggedIn),
		errors.Is(err, attendance.ErrIllegalTransition),
		errors.Is(err, attendance.ErrChallengeAlreadyActive),
		errors.Is(err, attendance.ErrNoActiveChallenge),
		errors.Is(err, attendance.ErrSubmitInProgress),
		errors.Is(err, attendance.ErrEmptyOtp),
		errors.Is(err, attendance.ErrMalformedOtp),
		gateway.IsUnauthorized(err):
		return 1
	}
	return 2
}

// fail prints err for the user and exits.
func fail(err error) {
	var cerr *attendance.ChallengeError
	switch {
	case errors.As(err, &cerr):
		fmt.Fprintln(os.Stderr, cerr.Message())
	case errors.Is(err, gateway.ErrNotLoggedIn), gateway.IsUnauthorized(err):
		fmt.Fprintln(os.Stderr, "Not logged in or session expired. Run: punch login")
	default:
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(exitCode(err))
}
