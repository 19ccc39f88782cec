package logging

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

type Logger struct {
	*zap.Logger
}

// NewLogger builds a production (JSON) logger at the given level.
// When development is set, the console encoder is used instead.
func NewLogger(level string, development bool) (*Logger, error) {
	config := zap.NewProductionConfig()
	if development {
		config = zap.NewDevelopmentConfig()
	}

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{logger}, nil
}

func NewNop() *Logger {
	return &Logger{zap.NewNop()}
}

// ContextWithTransactionID tags ctx so WithTransactionID can pick the id up.
func ContextWithTransactionID(ctx context.Context, txID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, txID)
}

func (l *Logger) WithTransactionID(ctx context.Context) *zap.Logger {
	if txID, ok := ctx.Value(ctxKey{}).(string); ok {
		return l.With(zap.String("tx_id", txID))
	}
	return l.Logger
}
