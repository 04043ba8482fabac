// Package httpapi exposes the whitelist service over a JSON HTTP API.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/whitelist/pkg/whitelist"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const (
	claimsContextKey = "auth_claims"
	userIDHeader     = "X-User-ID"
	defaultUserID    = "default_user"
	serviceName      = "UID Whitelist Backend"
	serviceVersion   = "1.0.0"
	statusActive     = "active"
)

// Service is the whitelist surface used by the HTTP handlers.
type Service interface {
	AddToWhitelist(ctx context.Context, userID whitelist.UserID, region whitelist.Region, uid whitelist.UID, ttl whitelist.TTL) (whitelist.PaidEntry, error)
	RemoveFromWhitelist(ctx context.Context, region whitelist.Region, uid whitelist.UID) error
	ListWhitelist(ctx context.Context, region whitelist.Region) ([]whitelist.EntryView, error)
	CheckWhitelist(ctx context.Context, uid whitelist.UID, region whitelist.Region) (whitelist.CheckResult, error)
	Balance(ctx context.Context, userID whitelist.UserID) (whitelist.Coins, error)
	CreditCoins(ctx context.Context, userID whitelist.UserID, amount whitelist.CoinAmount, reason whitelist.Reason) (whitelist.Coins, error)
	History(ctx context.Context, userID whitelist.UserID) ([]whitelist.LedgerEntry, error)
	CleanupExpired(ctx context.Context) (int, error)
	Stats(ctx context.Context) (whitelist.Stats, error)
}

// Config carries the HTTP-level settings.
type Config struct {
	AllowedOrigins  []string
	DefaultTTLHours int64
	CreditRateLimit float64
	CreditRateBurst int
	RequestTimeout  time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

// WithSessionValidator resolves callers from a tauth session cookie instead of
// the X-User-ID header.
func WithSessionValidator(validator *sessionvalidator.Validator) Option {
	return func(handler *Handler) {
		handler.validator = validator
	}
}

// WithLogger sets the zap logger used for server-side failures.
func WithLogger(logger *zap.Logger) Option {
	return func(handler *Handler) {
		if logger != nil {
			handler.logger = logger
		}
	}
}

// WithClock overrides the clock used by the health endpoint.
func WithClock(now func() int64) Option {
	return func(handler *Handler) {
		if now != nil {
			handler.nowFn = now
		}
	}
}

// Handler serves the JSON API.
type Handler struct {
	service   Service
	cfg       Config
	validator *sessionvalidator.Validator
	limiter   *creditLimiter
	logger    *zap.Logger
	nowFn     func() int64
}

// NewHandler validates cfg and builds a Handler over service.
func NewHandler(service Service, cfg Config, opts ...Option) (*Handler, error) {
	if service == nil {
		return nil, fmt.Errorf("httpapi: service is required")
	}
	if cfg.DefaultTTLHours == 0 {
		cfg.DefaultTTLHours = whitelist.DefaultTTLHours
	}
	if _, err := whitelist.NewTTLHours(cfg.DefaultTTLHours); err != nil {
		return nil, fmt.Errorf("httpapi: default hours: %w", err)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	handler := &Handler{
		service: service,
		cfg:     cfg,
		logger:  zap.NewNop(),
		nowFn:   func() int64 { return time.Now().UTC().Unix() },
	}
	if cfg.CreditRateLimit > 0 {
		handler.limiter = newCreditLimiter(cfg.CreditRateLimit, cfg.CreditRateBurst)
	}
	for _, opt := range opts {
		opt(handler)
	}
	return handler, nil
}

// Start runs background maintenance for the handler until ctx is cancelled.
func (handler *Handler) Start(ctx context.Context) {
	handler.limiter.startJanitor(ctx)
}

// Router builds the gin engine with every route registered.
func (handler *Handler) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(handler.corsConfig()))

	router.GET("/", handler.handleIndex)
	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/regions", handler.handleRegions)
	api.POST("/whitelist/remove", handler.handleRemove)
	api.GET("/whitelist/list", handler.handleListAll)
	api.GET("/whitelist/list/:region", handler.handleListRegion)
	api.POST("/whitelist/check", handler.handleCheck)
	api.GET("/stats", handler.handleStats)
	api.POST("/cleanup", handler.handleCleanup)

	member := api.Group("")
	if handler.validator != nil {
		member.Use(handler.validator.GinMiddleware(claimsContextKey))
	}
	member.POST("/whitelist/add", handler.handleAdd)
	member.GET("/coins/balance", handler.handleBalance)
	member.POST("/coins/add", handler.handleCredit)
	member.GET("/coins/history", handler.handleHistory)

	return router
}

func (handler *Handler) corsConfig() cors.Config {
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", userIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(handler.cfg.AllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
		return corsConfig
	}
	corsConfig.AllowOrigins = handler.cfg.AllowedOrigins
	return corsConfig
}

func (handler *Handler) handleIndex(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   serviceName,
		"version":   serviceVersion,
		"timestamp": handler.nowFn(),
	})
}

func (handler *Handler) handleRegions(ctx *gin.Context) {
	regions := whitelist.AllRegions()
	payload := make([]regionPayload, 0, len(regions))
	for _, region := range regions {
		payload = append(payload, regionPayload{Code: region.String(), Name: region.DisplayName()})
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "regions": payload})
}

func (handler *Handler) handleAdd(ctx *gin.Context) {
	userID, ok := handler.identify(ctx)
	if !ok {
		return
	}
	var request addRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	uid, err := whitelist.NewUID(request.UID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	region, err := whitelist.ParseRegion(request.Region)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	hours := handler.cfg.DefaultTTLHours
	if request.Hours != nil {
		hours = *request.Hours
	}
	ttl, err := whitelist.NewTTLHours(hours)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	paid, err := handler.service.AddToWhitelist(requestCtx, userID, region, uid, ttl)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"success":         true,
		"uid":             paid.UID.String(),
		"region":          paid.Region.String(),
		"expiry":          paid.ExpiresAtUnixUTC,
		"status":          statusActive,
		"time_remaining":  ttl.Seconds(),
		"cost":            paid.Cost.Int64(),
		"coins_remaining": paid.CoinsRemaining.Int64(),
	})
}

func (handler *Handler) handleRemove(ctx *gin.Context) {
	var request removeRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	uid, storable, err := lookupUID(request.UID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	region, err := whitelist.ParseRegion(request.Region)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	if !storable {
		handler.respondError(ctx, fmt.Errorf("%w: uid %s in %s", whitelist.ErrUIDNotFound, strings.TrimSpace(request.UID), region))
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	if err := handler.service.RemoveFromWhitelist(requestCtx, region, uid); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("UID %s removed from %s whitelist", uid, region),
	})
}

func (handler *Handler) handleListAll(ctx *gin.Context) {
	handler.respondWithList(ctx, whitelist.AnyRegion)
}

func (handler *Handler) handleListRegion(ctx *gin.Context) {
	region, err := whitelist.ParseRegion(ctx.Param("region"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondWithList(ctx, region)
}

func (handler *Handler) respondWithList(ctx *gin.Context, region whitelist.Region) {
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	views, err := handler.service.ListWhitelist(requestCtx, region)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	entries := make([]entryPayload, 0, len(views))
	for _, view := range views {
		entries = append(entries, entryPayload{
			UID:           view.UID.String(),
			Region:        view.Region.String(),
			Expiry:        view.ExpiresAtUnixUTC,
			Status:        string(view.Status),
			TimeRemaining: view.RemainingSeconds,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "entries": entries})
}

func (handler *Handler) handleCheck(ctx *gin.Context) {
	var request checkRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	uid, storable, err := lookupUID(request.UID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	region, err := whitelist.ParseOptionalRegion(request.Region)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	if !storable {
		ctx.JSON(http.StatusOK, gin.H{"success": true, "whitelisted": false})
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	result, err := handler.service.CheckWhitelist(requestCtx, uid, region)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	if !result.Whitelisted {
		ctx.JSON(http.StatusOK, gin.H{"success": true, "whitelisted": false})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"success":        true,
		"whitelisted":    true,
		"region":         result.Region.String(),
		"expiry":         result.ExpiresAtUnixUTC,
		"time_remaining": result.RemainingSeconds,
	})
}

func (handler *Handler) handleBalance(ctx *gin.Context) {
	userID, ok := handler.identify(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	balance, err := handler.service.Balance(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"user_id": userID.String(),
		"coins":   balance.Int64(),
	})
}

func (handler *Handler) handleCredit(ctx *gin.Context) {
	userID, ok := handler.identify(ctx)
	if !ok {
		return
	}
	var request creditRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	amount, err := whitelist.NewCreditAmount(request.Amount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	reason, err := whitelist.NewReason(request.Reason)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	if !handler.limiter.allow(userID.String()) {
		ctx.JSON(http.StatusTooManyRequests, errorResponse("rate_limited", "too many credit requests"))
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	balance, err := handler.service.CreditCoins(requestCtx, userID, amount, reason)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"coins":   balance.Int64(),
		"added":   amount.Int64(),
		"reason":  reason.String(),
	})
}

func (handler *Handler) handleHistory(ctx *gin.Context) {
	userID, ok := handler.identify(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	history, err := handler.service.History(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	entries := make([]historyPayload, 0, len(history))
	for _, entry := range history {
		entries = append(entries, historyPayload{
			EntryID:   entry.EntryID,
			Action:    string(entry.Action),
			Amount:    entry.Amount,
			Region:    entry.Region,
			UID:       entry.UID,
			Hours:     entry.Hours,
			Reason:    entry.Reason,
			Timestamp: entry.TimestampUnixUTC,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "history": entries})
}

func (handler *Handler) handleStats(ctx *gin.Context) {
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	stats, err := handler.service.Stats(requestCtx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats": statsPayload{
			TotalWhitelisted:   stats.TotalWhitelisted,
			ActiveWhitelisted:  stats.ActiveWhitelisted,
			ExpiredWhitelisted: stats.ExpiredWhitelisted,
			TotalUsers:         stats.TotalUsers,
			TotalCoins:         stats.TotalCoins,
		},
	})
}

func (handler *Handler) handleCleanup(ctx *gin.Context) {
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	removed, err := handler.service.CleanupExpired(requestCtx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"removed": removed,
		"message": fmt.Sprintf("Cleaned up %d expired entries", removed),
	})
}

// lookupUID parses a uid naming an existing entry. Only numeric uids can be
// stored, so any other non-empty value is reported as not storable rather than
// rejected.
func lookupUID(raw string) (whitelist.UID, bool, error) {
	uid, err := whitelist.NewUID(raw)
	if err == nil {
		return uid, true, nil
	}
	if strings.TrimSpace(raw) == "" {
		return whitelist.UID{}, false, err
	}
	return whitelist.UID{}, false, nil
}

// identify resolves the caller. It writes the error response itself when the
// caller cannot be resolved.
func (handler *Handler) identify(ctx *gin.Context) (whitelist.UserID, bool) {
	var raw string
	if handler.validator != nil {
		claims := getClaims(ctx)
		if claims == nil {
			ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
			return whitelist.UserID{}, false
		}
		raw = claims.GetUserID()
	} else {
		raw = strings.TrimSpace(ctx.GetHeader(userIDHeader))
		if raw == "" {
			raw = defaultUserID
		}
	}
	userID, err := whitelist.NewUserID(raw)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid user"))
		return whitelist.UserID{}, false
	}
	return userID, true
}

func (handler *Handler) respondError(ctx *gin.Context, err error) {
	var partial *whitelist.PartialSuccessError
	if errors.As(err, &partial) {
		handler.logger.Error("paid add partially applied",
			zap.String("uid", partial.Entry.UID.String()),
			zap.String("region", partial.Entry.Region.String()),
			zap.Error(partial.Cause),
		)
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"success":     false,
			"error":       gin.H{"code": "partial_success", "message": "uid whitelisted but coins were not charged"},
			"whitelisted": partial.Whitelisted,
			"charged":     partial.Charged,
			"uid":         partial.Entry.UID.String(),
			"region":      partial.Entry.Region.String(),
			"expiry":      partial.Entry.ExpiresAtUnixUTC,
		})
		return
	}
	statusCode, code := classifyError(err)
	if statusCode >= http.StatusInternalServerError {
		handler.logger.Error("request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
		ctx.JSON(statusCode, errorResponse(code, "storage unavailable"))
		return
	}
	ctx.JSON(statusCode, errorResponse(code, err.Error()))
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, whitelist.ErrInvalidRegion):
		return http.StatusBadRequest, "invalid_region"
	case errors.Is(err, whitelist.ErrInvalidUID):
		return http.StatusBadRequest, "invalid_uid"
	case errors.Is(err, whitelist.ErrInvalidTTL):
		return http.StatusBadRequest, "invalid_hours"
	case errors.Is(err, whitelist.ErrInvalidCoinAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, whitelist.ErrValidation):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, whitelist.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, whitelist.ErrInsufficientFunds):
		return http.StatusBadRequest, "insufficient_funds"
	default:
		return http.StatusInternalServerError, "storage_error"
	}
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

type regionPayload struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type addRequest struct {
	UID    string `json:"uid"`
	Region string `json:"region"`
	Hours  *int64 `json:"hours"`
}

type removeRequest struct {
	UID    string `json:"uid"`
	Region string `json:"region"`
}

type checkRequest struct {
	UID    string `json:"uid"`
	Region string `json:"region"`
}

type creditRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

type entryPayload struct {
	UID           string `json:"uid"`
	Region        string `json:"region"`
	Expiry        int64  `json:"expiry"`
	Status        string `json:"status"`
	TimeRemaining int64  `json:"time_remaining"`
}

type historyPayload struct {
	EntryID   string `json:"entry_id"`
	Action    string `json:"action"`
	Amount    int64  `json:"amount"`
	Region    string `json:"region,omitempty"`
	UID       string `json:"uid,omitempty"`
	Hours     int64  `json:"hours,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type statsPayload struct {
	TotalWhitelisted   int   `json:"total_whitelisted"`
	ActiveWhitelisted  int   `json:"active_whitelisted"`
	ExpiredWhitelisted int   `json:"expired_whitelisted"`
	TotalUsers         int   `json:"total_users"`
	TotalCoins         int64 `json:"total_coins"`
}
