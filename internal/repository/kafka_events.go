package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/models"
	drepo "github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/repository"
	pkgkafka "github.com/alptigingorkem-coder/bist30-ai-trader/pkg/kafka"
)

const (
	EventAlertTriggered = "ALERT_TRIGGERED"
	EventStatusChanged  = "DASHBOARD_STATUS"
)

// Event is the envelope written to Kafka topics.
type Event struct {
	ID   string      `json:"id"`
	Type string      `json:"type"`
	At   time.Time   `json:"at"`
	Data interface{} `json:"data"`
}

// KeyedPublisher is the part of pkg/kafka.Producer the event publisher uses.
type KeyedPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

var _ KeyedPublisher = (*pkgkafka.Producer)(nil)

// KafkaEvents publishes fired alerts keyed by symbol and status transitions
// keyed by stream URL.
type KafkaEvents struct {
	pub         KeyedPublisher
	alertsTopic string
	statusTopic string
	now         func() time.Time
}

var _ drepo.EventPublisher = (*KafkaEvents)(nil)

func NewKafkaEvents(pub KeyedPublisher, alertsTopic, statusTopic string) *KafkaEvents {
	return &KafkaEvents{pub: pub, alertsTopic: alertsTopic, statusTopic: statusTopic, now: time.Now}
}

func (k *KafkaEvents) PublishAlert(ctx context.Context, rule models.AlertRule) error {
	return k.pub.Publish(ctx, k.alertsTopic, []byte(rule.Symbol), k.event(EventAlertTriggered, rule))
}

func (k *KafkaEvents) PublishStatus(ctx context.Context, st models.DashboardStatus) error {
	return k.pub.Publish(ctx, k.statusTopic, []byte(st.Connection.URL), k.event(EventStatusChanged, st))
}

func (k *KafkaEvents) Close() error { return k.pub.Close() }

func (k *KafkaEvents) event(kind string, data interface{}) Event {
	return Event{ID: uuid.NewString(), Type: kind, At: k.now().UTC(), Data: data}
}

// NopEvents discards events when Kafka is disabled.
type NopEvents struct{}

func (NopEvents) PublishAlert(context.Context, models.AlertRule) error        { return nil }
func (NopEvents) PublishStatus(context.Context, models.DashboardStatus) error { return nil }
func (NopEvents) Close() error                                                { return nil }
