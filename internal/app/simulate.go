package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"spxreplay/internal/alerting"
	"spxreplay/internal/model"
)

// SimulateAlert sends one synthetic decision change through the configured
// alert channel.
func (a *App) SimulateAlert(ctx context.Context, from, to model.Signal, closePrice decimal.Decimal) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}
	if from == to {
		return errors.New("--from and --to must differ")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	note := alerting.Notification{
		Symbol:   a.Config.Alerting.Symbol,
		Day:      time.Now().UTC().Truncate(24 * time.Hour),
		Previous: from,
		Current:  to,
		Score:    decimal.NewFromFloat(to.Level()),
		Close:    closePrice,
	}
	return notifier.Notify(ctx, note)
}
