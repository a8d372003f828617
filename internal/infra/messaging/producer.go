package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/model"
	"github.com/k1s0-platform/system-server-go-authcore/internal/infra/config"
)

type writerMessage = kafka.Message

// messageWriter は kafka.Writer のうち使用するメソッドのみを切り出したもの。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...writerMessage) error
	Close() error
}

// KafkaProducer は監査イベントを Kafka に配信するプロデューサー。
type KafkaProducer struct {
	writer messageWriter
	topic  string
}

// NewKafkaProducer は新しい KafkaProducer を作成する。
func NewKafkaProducer(cfg config.KafkaConfig) *KafkaProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &KafkaProducer{writer: w, topic: cfg.Topic}
}

// Publish は監査ログイベントを JSON にシリアライズして Kafka に配信する。
// パーティションキーは user_id。user_id がない場合は監査ログ ID を使う。
func (p *KafkaProducer) Publish(ctx context.Context, log *model.AuditLog) error {
	value, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to marshal audit log: %w", err)
	}

	key := log.UserID
	if key == "" {
		key = log.ID
	}

	msg := writerMessage{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(log.EventType)},
		},
		Time: log.RecordedAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish audit log to %s: %w", p.topic, err)
	}
	return nil
}

// Close は Kafka プロデューサーを閉じる。
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
