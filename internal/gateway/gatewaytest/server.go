package gatewaytest

import (
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Tiliavir/punch/internal/attendance"
	"github.com/Tiliavir/punch/internal/gateway"
	"github.com/Tiliavir/punch/internal/validate"
)

// TokenPath is the OAuth2 token endpoint of the server.
const TokenPath = "/oauth/token"

// Claims are carried by the access tokens the server issues.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Server exposes a Fake over HTTP.
type Server struct {
	App    *fiber.App
	Fake   *Fake
	Secret []byte
	// TokenTTL is the lifetime of issued access tokens.
	TokenTTL time.Duration

	mu      sync.Mutex
	refresh map[string]string
}

type userPayload struct {
	UserID string `json:"user_id" validate:"required"`
}

type verifyPayload struct {
	UserID string `json:"user_id" validate:"required"`
	Otp    string `json:"otp" validate:"required,otpcode"`
}

// NewServer builds the fiber app serving fake.
func NewServer(fake *Fake, secret []byte) *Server {
	s := &Server{
		Fake:     fake,
		Secret:   secret,
		TokenTTL: time.Hour,
		refresh:  make(map[string]string),
	}
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Post(TokenPath, s.Token)

	api := app.Group(gateway.APIPrefix, s.AuthMiddleware())
	api.Get("/today", s.Today)
	api.Get("/records", s.Records)
	api.Post("/clock-in/request", s.RequestClockIn)
	api.Post("/clock-out/request", s.RequestClockOut)
	api.Post("/clock-in/verify", s.VerifyClockIn)
	api.Post("/clock-out/verify", s.VerifyClockOut)
	api.Get("/otps/pending", s.ManagerMiddleware(), s.PendingOtps)

	s.App = app
	return s
}

// Start listens on a random local port and returns the base URL.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	go func() { _ = s.App.Listener(ln) }()
	return "http://" + ln.Addr().String(), nil
}

// Close stops the server.
func (s *Server) Close() error {
	return s.App.Shutdown()
}

// IssueToken signs an access token for userID.
func (s *Server) IssueToken(userID string) (string, error) {
	role := "EMPLOYEE"
	if s.Fake.isManager(userID) {
		role = "MANAGER"
	}
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(s.Fake.Now().Add(s.TokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.Secret)
}

// Token implements the password and refresh_token grants.
func (s *Server) Token(c *fiber.Ctx) error {
	var userID string
	switch c.FormValue("grant_type") {
	case "password":
		u, ok := s.Fake.authenticate(c.FormValue("username"), c.FormValue("password"))
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_grant"})
		}
		userID = u.id
	case "refresh_token":
		s.mu.Lock()
		id, ok := s.refresh[c.FormValue("refresh_token")]
		delete(s.refresh, c.FormValue("refresh_token"))
		s.mu.Unlock()
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_grant"})
		}
		userID = id
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unsupported_grant_type"})
	}

	signed, err := s.IssueToken(userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "server_error"})
	}
	refresh := uuid.NewString()
	s.mu.Lock()
	s.refresh[refresh] = userID
	s.mu.Unlock()

	return c.JSON(fiber.Map{
		"access_token":  signed,
		"token_type":    "Bearer",
		"expires_in":    int(s.TokenTTL.Seconds()),
		"refresh_token": refresh,
	})
}

// AuthMiddleware checks the bearer token and stores its claims.
func (s *Server) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Authorization header is required"})
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && parts[0] == "Bearer") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Authorization header format must be Bearer <token>"})
		}

		claims := &Claims{}
		parsed, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (any, error) {
			return s.Secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.Fake.Now))
		if err != nil || !parsed.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
		}

		c.Locals("claims", claims)
		return c.Next()
	}
}

// ManagerMiddleware admits managers only.
func (s *Server) ManagerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, _ := c.Locals("claims").(*Claims)
		if claims == nil || claims.Role != "MANAGER" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "managers only"})
		}
		return c.Next()
	}
}

func claimedUser(c *fiber.Ctx) string {
	claims, _ := c.Locals("claims").(*Claims)
	if claims == nil {
		return ""
	}
	return claims.UserID
}

func forbidden(c *fiber.Ctx) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "user_id does not match token"})
}

// writeError maps an engine error to its status and code.
func writeError(c *fiber.Ctx, err error) error {
	status, code := fiber.StatusInternalServerError, ""
	switch {
	case errors.Is(err, attendance.ErrAlreadyCompletedToday):
		status, code = fiber.StatusConflict, gateway.CodeAlreadyCompletedToday
	case errors.Is(err, attendance.ErrAlreadyClockedIn):
		status, code = fiber.StatusConflict, gateway.CodeAlreadyClockedIn
	case errors.Is(err, attendance.ErrAlreadyClockedOut):
		status, code = fiber.StatusConflict, gateway.CodeAlreadyClockedOut
	case errors.Is(err, attendance.ErrNoActiveClockIn):
		status, code = fiber.StatusConflict, gateway.CodeNoActiveClockIn
	case errors.Is(err, attendance.ErrExpiredOtp):
		status, code = fiber.StatusBadRequest, gateway.CodeExpiredOtp
	case errors.Is(err, attendance.ErrInvalidOtp):
		status, code = fiber.StatusBadRequest, gateway.CodeInvalidOtp
	case errors.Is(err, attendance.ErrInvalidOrExpiredOtp):
		status, code = fiber.StatusBadRequest, gateway.CodeInvalidOrExpiredOtp
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error(), "code": code})
}

func (s *Server) Today(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID != claimedUser(c) {
		return forbidden(c)
	}
	rec, err := s.Fake.FetchTodayRecord(c.Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"data": rec})
}

func (s *Server) Records(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID != claimedUser(c) {
		return forbidden(c)
	}
	start, err := time.ParseInLocation("2006-01-02", c.Query("start"), s.Fake.loc)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "start must be YYYY-MM-DD"})
	}
	end, err := time.ParseInLocation("2006-01-02", c.Query("end"), s.Fake.loc)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "end must be YYYY-MM-DD"})
	}
	recs, err := s.Fake.FetchMonthRecords(c.Context(), userID, start, end)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"data": recs})
}

// parseUser reads the request body. When ok is false the error answer has
// already been written and err is what the handler returns.
func (s *Server) parseUser(c *fiber.Ctx) (userID string, ok bool, err error) {
	var payload userPayload
	if err := c.BodyParser(&payload); err != nil {
		return "", false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload: " + err.Error()})
	}
	if errs := validate.ValidateStruct(payload); errs != nil {
		return "", false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": errs[0].Msg, "errors": errs})
	}
	if payload.UserID != claimedUser(c) {
		return "", false, forbidden(c)
	}
	return payload.UserID, true, nil
}

func (s *Server) parseVerify(c *fiber.Ctx) (payload verifyPayload, ok bool, err error) {
	if err := c.BodyParser(&payload); err != nil {
		return payload, false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload: " + err.Error()})
	}
	if errs := validate.ValidateStruct(payload); errs != nil {
		return payload, false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": errs[0].Msg, "code": gateway.CodeInvalidOtp, "errors": errs})
	}
	if payload.UserID != claimedUser(c) {
		return payload, false, forbidden(c)
	}
	return payload, true, nil
}

func (s *Server) RequestClockIn(c *fiber.Ctx) error {
	userID, ok, err := s.parseUser(c)
	if !ok {
		return err
	}
	if err := s.Fake.RequestClockIn(c.Context(), userID); err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": "otp sent to manager"})
}

func (s *Server) RequestClockOut(c *fiber.Ctx) error {
	userID, ok, err := s.parseUser(c)
	if !ok {
		return err
	}
	if err := s.Fake.RequestClockOut(c.Context(), userID); err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": "otp sent to manager"})
}

func (s *Server) VerifyClockIn(c *fiber.Ctx) error {
	payload, ok, err := s.parseVerify(c)
	if !ok {
		return err
	}
	rec, err := s.Fake.VerifyClockIn(c.Context(), payload.UserID, payload.Otp)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"data": rec})
}

func (s *Server) VerifyClockOut(c *fiber.Ctx) error {
	payload, ok, err := s.parseVerify(c)
	if !ok {
		return err
	}
	rec, err := s.Fake.VerifyClockOut(c.Context(), payload.UserID, payload.Otp)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"data": rec})
}

func (s *Server) PendingOtps(c *fiber.Ctx) error {
	otps, err := s.Fake.FetchPendingOtps(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"data": otps})
}
