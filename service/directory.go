package service

import (
	"context"

	"go.uber.org/zap"

	"matchbook/config"
	"matchbook/domain/matching"
	"matchbook/infra/instruments"
)

// LoadDirectory resolves instrument names from Redis when configured,
// otherwise from the instruments file. It returns nil when neither is set
// and instruments are then named by id.
func LoadDirectory(ctx context.Context, cfg config.EngineConfig, log *zap.Logger) (matching.Directory, error) {
	if rc := cfg.InstrumentsRedis; rc != nil {
		rdb, err := instruments.NewRedisClient(ctx, rc)
		if err != nil {
			return nil, err
		}
		defer rdb.Close()
		return instruments.LoadRedis(ctx, rdb, rc.Key, cfg.Universe, log)
	}
	if cfg.InstrumentsFile != "" {
		names, err := instruments.LoadFile(cfg.InstrumentsFile, cfg.Universe)
		if err != nil {
			return nil, err
		}
		log.Info("instruments loaded", zap.String("file", cfg.InstrumentsFile))
		return names, nil
	}
	return nil, nil
}
