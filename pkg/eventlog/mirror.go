package eventlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itohio/aspol/pkg/sample"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Event is the message body published by mirrors.
type Event struct {
	Device string      `json:"device"`
	Mode   sample.Mode `json:"mode"`
	Record
}

// Publisher is the subset of *amqp.Channel used by AMQPMirror.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPMirror publishes records as JSON to a queue.
type AMQPMirror struct {
	ch     Publisher
	queue  string
	device func() string
}

// NewAMQPMirror creates a mirror publishing to queue through the default exchange.
// device is consulted on every publish so renames are picked up.
func NewAMQPMirror(ch Publisher, queue string, device func() string) *AMQPMirror {
	return &AMQPMirror{ch: ch, queue: queue, device: device}
}

// DeclareQueue declares a durable queue for the mirror.
func DeclareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,
		false,
		false,
		false,
		nil,
	)
	return err
}

// Mirror publishes r.
func (m *AMQPMirror) Mirror(ctx context.Context, mode sample.Mode, r Record) error {
	body, err := json.Marshal(Event{Device: m.device(), Mode: mode, Record: r})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = m.ch.PublishWithContext(ctx, "", m.queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Inserter is the subset of *mongo.Collection used by MongoMirror.
type Inserter interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// MongoMirror stores records in a collection.
type MongoMirror struct {
	coll   Inserter
	device func() string
}

// NewMongoMirror creates a mirror inserting into coll.
func NewMongoMirror(coll Inserter, device func() string) *MongoMirror {
	return &MongoMirror{coll: coll, device: device}
}

// Mirror inserts r.
func (m *MongoMirror) Mirror(ctx context.Context, mode sample.Mode, r Record) error {
	_, err := m.coll.InsertOne(ctx, bson.M{
		"device": m.device(),
		"mode":   mode.String(),
		"at":     r.At,
		"lat":    r.Lat,
		"lng":    r.Lng,
		"value":  r.Value,
	})
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}
