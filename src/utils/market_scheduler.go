package utils

import (
	"time"

	"stock-streamer/src/logger"
	"stock-streamer/src/models"
)

// MarketScheduler gates poll cycles on exchange trading hours. All
// instruments come from one upstream exchange, so a single calendar is
// enough.
type MarketScheduler struct {
	Calendar *TradingCalendar
	Logger   *logger.Logger
}

// -----------------------------------------------------------------------------

func NewMarketScheduler(cfg models.MMarketConfig, l *logger.Logger) *MarketScheduler {
	return &MarketScheduler{
		Calendar: GetCalendar(cfg.MIC, cfg.Timezone, l),
		Logger:   l,
	}
}

// -----------------------------------------------------------------------------

// MarketOpen reports whether the exchange is currently open.
func (ms *MarketScheduler) MarketOpen() bool {
	return ms.Calendar.IsOpenOnMinute(time.Now().UTC())
}
