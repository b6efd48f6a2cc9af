package logging

import (
	"encoding/json"
	"fmt"

	"github.com/Gobusters/ectologger"
	"go.uber.org/zap"
)

// NewLogger builds the application logger. Log messages are structured by
// ectologger and sunk into zap so output format and destinations stay a zap
// concern. The returned flush func should be deferred in main.
func NewLogger(appName, environment string) (ectologger.Logger, func(), error) {
	var zcfg zap.Config
	if environment == "production" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	zlog, err := zcfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build zap logger: %w", err)
	}

	sink := zlog.Sugar().With("app", appName)

	logger := ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		payload, err := json.Marshal(msg)
		if err != nil {
			sink.Infow("log", "payload", fmt.Sprintf("%+v", msg))
			return
		}
		sink.Info(string(payload))
	})

	flush := func() {
		_ = zlog.Sync()
	}

	return logger, flush, nil
}

// NewNopLogger returns a logger that discards everything, for tests.
func NewNopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}
