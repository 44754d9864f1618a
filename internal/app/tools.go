package app

import (
	"context"
	"log/slog"

	"github.com/wilot/weather-station/internal/config"
	"github.com/wilot/weather-station/internal/record"
	"github.com/wilot/weather-station/internal/storage"
	"github.com/wilot/weather-station/internal/storage/migrate"
	"github.com/wilot/weather-station/internal/utils"
)

// Migrate applies pending schema migrations to the configured database.
func Migrate(ctx context.Context, cfg config.Config, logger *slog.Logger) ([]string, error) {
	dbConn, err := storage.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := storage.Close(dbConn); closeErr != nil {
			logger.Error("db close", "error", closeErr)
		}
	}()
	return migrate.Run(ctx, dbConn, logger)
}

// DecodeHex decodes a hex dump of one published payload.
func DecodeHex(s string) (record.Record, record.Layout, error) {
	b, err := utils.ParseHex(s)
	if err != nil {
		return record.Record{}, record.LayoutFull, err
	}
	return record.Decode(b)
}
