package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Tiliavir/punch/internal/attendance"
	"github.com/Tiliavir/punch/internal/model"
)

// APIPrefix is the path of the attendance API below the base URL.
const APIPrefix = "/api/v1/attendance"

// Error codes returned by the attendance API.
const (
	CodeAlreadyClockedIn      = "ALREADY_CLOCKED_IN"
	CodeAlreadyCompletedToday = "ALREADY_COMPLETED_TODAY"
	CodeNoActiveClockIn       = "NO_ACTIVE_CLOCK_IN"
	CodeAlreadyClockedOut     = "ALREADY_CLOCKED_OUT"
	CodeInvalidOtp            = "INVALID_OTP"
	CodeExpiredOtp            = "EXPIRED_OTP"
	CodeInvalidOrExpiredOtp   = "INVALID_OR_EXPIRED_OTP"
)

var codeErrors = map[string]error{
	CodeAlreadyClockedIn:      attendance.ErrAlreadyClockedIn,
	CodeAlreadyCompletedToday: attendance.ErrAlreadyCompletedToday,
	CodeNoActiveClockIn:       attendance.ErrNoActiveClockIn,
	CodeAlreadyClockedOut:     attendance.ErrAlreadyClockedOut,
	CodeInvalidOtp:            attendance.ErrInvalidOtp,
	CodeExpiredOtp:            attendance.ErrExpiredOtp,
	CodeInvalidOrExpiredOtp:   attendance.ErrInvalidOrExpiredOtp,
}

// APIError is a non-2xx answer of the attendance API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("attendance API error %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("attendance API error %d: %s", e.Status, e.Message)
}

// Unwrap maps the error code to the engine's typed errors. Unknown codes are
// transport failures.
func (e *APIError) Unwrap() error {
	if err, ok := codeErrors[e.Code]; ok {
		return err
	}
	return attendance.ErrTransport
}

// envelope is the body of every API answer.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Code  string          `json:"code"`
}

// Client is the REST implementation of attendance.Gateway.
type Client struct {
	httpClient *http.Client
	baseURL    string
	log        *zap.Logger
}

var _ attendance.Gateway = (*Client)(nil)

// NewClient creates a client for the API at baseURL. httpClient is expected
// to authenticate its requests, e.g. one built by oauth2.NewClient.
func NewClient(httpClient *http.Client, baseURL string, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		log:        logger,
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := c.baseURL + APIPrefix + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", attendance.ErrTransport, method, path, err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("%w: reading response body: %w", attendance.ErrTransport, err)
	}
	c.log.Debug("api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	var env envelope
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("%w: decoding response: %w", attendance.ErrTransport, err)
		}
	}

	if resp.StatusCode >= 300 {
		msg := env.Error
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: msg}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decoding data: %w", attendance.ErrTransport, err)
	}
	return nil
}

type userRequest struct {
	UserID string `json:"user_id"`
}

type verifyRequest struct {
	UserID string `json:"user_id"`
	Otp    string `json:"otp"`
}

// FetchTodayRecord returns today's record, or nil when there is none yet.
func (c *Client) FetchTodayRecord(ctx context.Context, userID string) (*model.AttendanceDay, error) {
	var rec *model.AttendanceDay
	if err := c.do(ctx, http.MethodGet, "/today", url.Values{"user_id": {userID}}, nil, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// FetchMonthRecords returns the records between start and end, inclusive.
func (c *Client) FetchMonthRecords(ctx context.Context, userID string, start, end time.Time) ([]model.AttendanceDay, error) {
	q := url.Values{
		"user_id": {userID},
		"start":   {start.Format(model.DateLayout)},
		"end":     {end.Format(model.DateLayout)},
	}
	var recs []model.AttendanceDay
	if err := c.do(ctx, http.MethodGet, "/records", q, nil, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (c *Client) RequestClockIn(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/clock-in/request", nil, userRequest{UserID: userID}, nil)
}

func (c *Client) RequestClockOut(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/clock-out/request", nil, userRequest{UserID: userID}, nil)
}

func (c *Client) VerifyClockIn(ctx context.Context, userID, otp string) (*model.AttendanceDay, error) {
	return c.verify(ctx, "/clock-in/verify", userID, otp)
}

func (c *Client) VerifyClockOut(ctx context.Context, userID, otp string) (*model.AttendanceDay, error) {
	return c.verify(ctx, "/clock-out/verify", userID, otp)
}

func (c *Client) verify(ctx context.Context, path, userID, otp string) (*model.AttendanceDay, error) {
	var rec *model.AttendanceDay
	if err := c.do(ctx, http.MethodPost, path, nil, verifyRequest{UserID: userID, Otp: otp}, &rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: verification answered without a record", attendance.ErrTransport)
	}
	return rec, nil
}

// FetchPendingOtps lists the outstanding challenges visible to a manager.
func (c *Client) FetchPendingOtps(ctx context.Context) ([]model.OtpChallenge, error) {
	var otps []model.OtpChallenge
	if err := c.do(ctx, http.MethodGet, "/otps/pending", nil, nil, &otps); err != nil {
		return nil, err
	}
	return otps, nil
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}
