package notify

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/wirehooks/eventbus-svc/internal/rabbitmq"
)

// AMQPMirror forwards broker notifications to a RabbitMQ exchange so
// out-of-process observers can consume them. The notification kind becomes
// the routing key.
type AMQPMirror struct {
	conn   *rabbitmq.Connection
	logger *zap.Logger
}

// NewAMQPMirror creates a mirror over an established connection.
func NewAMQPMirror(conn *rabbitmq.Connection, logger *zap.Logger) *AMQPMirror {
	return &AMQPMirror{conn: conn, logger: logger}
}

// Run consumes the subscription channel until it is closed. Publish failures
// are logged and dropped; notifications are best-effort observability, not
// part of the delivery contract.
func (m *AMQPMirror) Run(notifications <-chan Notification) {
	for notification := range notifications {
		body, err := json.Marshal(notification)
		if err != nil {
			m.logger.Error("Failed to marshal notification",
				zap.String("kind", notification.Kind),
				zap.Error(err),
			)
			continue
		}
		if err := m.conn.Publish(notification.Kind, body); err != nil {
			m.logger.Warn("Failed to mirror notification to RabbitMQ",
				zap.String("kind", notification.Kind),
				zap.Error(err),
			)
		}
	}
}
