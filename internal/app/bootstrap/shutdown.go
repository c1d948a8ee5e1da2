// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops the worker, closes every device session store, then tears
// down the notifier and the MongoDB client.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if s := deps.Services; s != nil {
		if s.Reconcile != nil {
			s.Reconcile.Stop()
		}
		if s.Hub != nil {
			if err := s.Hub.Close(ctx); err != nil {
				logger.Warn("session hub did not drain", zap.Error(err))
			}
		}
		if s.SignInLimiter != nil {
			s.SignInLimiter.Close()
		}
		if s.Notifier != nil {
			s.Notifier.Close()
		}
	}

	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}
