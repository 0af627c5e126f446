package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hbl-templ/bakerloo-line-extension/internal/mqtt"
)

func invalidateCmd(e *env) *cobra.Command {
	var reason string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Broadcast a cache invalidation to every running dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if e.cfg.MQTTBroker == "" {
				return errors.New("MQTT_BROKER is not set")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			// Broker client ids must be unique; a clash would drop the server's session.
			pub := mqtt.NewPublisher(e.cfg, appName+"-"+uuid.NewString(), e.logger)
			if err := pub.Connect(ctx); err != nil {
				return err
			}
			defer pub.Disconnect()

			if err := pub.PublishInvalidation(ctx, mqtt.Invalidation{Source: appName, Reason: reason}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "invalidation sent to %s\n", e.cfg.MQTTTopic)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "free-text reason recorded by the dashboards")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "connect and publish deadline")
	return cmd
}
