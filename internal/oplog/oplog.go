// Package oplog routes whitelist operation callbacks to a zap logger.
package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/whitelist/pkg/whitelist"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	statusOK      = "ok"
	statusPartial = "partial"
	logMessage    = "whitelist operation"
)

// Logger implements whitelist.OperationLogger.
type Logger struct {
	logger *zap.Logger
}

// New returns a Logger writing to logger. A nil logger discards everything.
func New(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger}
}

// LogOperation writes entry at info for success, error for partial success and
// warn for every other failure.
func (adapter *Logger) LogOperation(_ context.Context, entry whitelist.OperationLog) {
	fields := make([]zap.Field, 0, 8)
	fields = append(fields,
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	)
	if userID := entry.UserID.String(); userID != "" {
		fields = append(fields, zap.String("user_id", userID))
	}
	if !entry.Region.IsAny() {
		fields = append(fields, zap.String("region", entry.Region.String()))
	}
	if uid := entry.UID.String(); uid != "" {
		fields = append(fields, zap.String("uid", uid))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.Int64("amount", entry.Amount.Int64()))
	}
	if entry.Count != 0 {
		fields = append(fields, zap.Int("count", entry.Count))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
	}
	adapter.logger.Log(levelFor(entry), logMessage, fields...)
}

func levelFor(entry whitelist.OperationLog) zapcore.Level {
	switch {
	case entry.Status == statusPartial:
		return zapcore.ErrorLevel
	case entry.Status == statusOK && entry.Error == nil:
		return zapcore.InfoLevel
	default:
		return zapcore.WarnLevel
	}
}
