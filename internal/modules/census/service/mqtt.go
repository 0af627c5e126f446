package service

import (
	"log/slog"

	"github.com/hbl-templ/bakerloo-line-extension/internal/mqtt"
)

// RegisterInvalidation clears the census caches on every invalidation broadcast.
func RegisterInvalidation(subscriber mqtt.MQTTSubscriber, svc CensusService, logger *slog.Logger) {
	subscriber.SetMessageHandler(func(msg mqtt.Invalidation) error {
		logger.Info("cache invalidation received",
			"source", msg.Source,
			"reason", msg.Reason,
		)
		svc.InvalidateAll()
		return nil
	})
}
