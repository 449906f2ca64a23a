package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/models"
)

// RideEventProducer feeds committed lifecycle transitions into Kafka for
// the offline/analytics side. It implements dispatch.EventSink.
type RideEventProducer struct {
	writer *kafka.Writer
}

func NewRideEventProducer(brokers []string, topic string) *RideEventProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &RideEventProducer{writer: w}
}

func (p *RideEventProducer) Publish(ctx context.Context, ev dispatch.LifecycleEvent) error {
	b, _ := json.Marshal(ev)
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.RideID), Value: b})
}

func (p *RideEventProducer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// LocationProducer publishes driver location updates; the consumer binary
// folds them into the Redis presence index.
type LocationProducer struct {
	writer *kafka.Writer
}

func NewLocationProducer(brokers []string, topic string) *LocationProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &LocationProducer{writer: w}
}

func (p *LocationProducer) PublishLocation(d models.Driver) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, _ := json.Marshal(d)
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(d.ID), Value: b})
}

func (p *LocationProducer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
