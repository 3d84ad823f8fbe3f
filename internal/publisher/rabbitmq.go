package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"shorts_pipeline/internal/domain"
)

const ActionVideoReady = "video_ready"

var ErrNotRendered = errors.New("post has no rendered video")

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQ announces rendered videos to downstream uploaders.
type RabbitMQ struct {
	conn       *amqp.Connection
	channel    channel
	exchange   string
	routingKey string
	logger     *slog.Logger
	now        func() time.Time
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

// NewRabbitMQ dials the broker and declares a durable direct exchange with one
// durable queue bound under the routing key.
func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	r := newWithChannel(ch, cfg, logger)
	r.conn = conn
	return r, nil
}

func declareTopology(ch *amqp.Channel, cfg Config) error {
	const durable, autoDelete, internal, exclusive, noWait = true, false, false, false, false

	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeDirect, durable, autoDelete, internal, noWait, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	q, err := ch.QueueDeclare(cfg.QueueName, durable, autoDelete, exclusive, noWait, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", cfg.QueueName, err)
	}
	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, noWait, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", q.Name, err)
	}
	return nil
}

func newWithChannel(ch channel, cfg Config, logger *slog.Logger) *RabbitMQ {
	return &RabbitMQ{
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger.With("component", "publisher"),
		now:        time.Now,
	}
}

// VideoMessage is the body of a video_ready message.
type VideoMessage struct {
	Action       string    `json:"action"`
	PostID       string    `json:"post_id"`
	ProductionID string    `json:"production_id"`
	Subreddit    string    `json:"subreddit"`
	Title        string    `json:"title"`
	Permalink    string    `json:"permalink"`
	Narration    string    `json:"narration,omitempty"`
	VideoPath    string    `json:"video_path"`
	Timestamp    time.Time `json:"timestamp"`
}

// Upload publishes the post's final video and reports where it went.
func (r *RabbitMQ) Upload(ctx context.Context, post *domain.PostData) (domain.PublishResult, error) {
	videoPath, ok := post.FinalVideoPath()
	if !ok {
		return domain.PublishResult{}, fmt.Errorf("post %s: %w", post.ID(), ErrNotRendered)
	}
	narration, _ := post.Narration()
	now := r.now().UTC()

	msg := VideoMessage{
		Action:       ActionVideoReady,
		PostID:       post.ID(),
		ProductionID: post.ProductionID,
		Subreddit:    post.Subreddit,
		Title:        post.Title,
		Permalink:    post.Permalink,
		Narration:    narration,
		VideoPath:    videoPath,
		Timestamp:    now,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return domain.PublishResult{}, fmt.Errorf("marshal message: %w", err)
	}

	publishing := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    post.ProductionID,
		Type:         ActionVideoReady,
		Body:         body,
		Timestamp:    now,
	}
	if err := r.channel.PublishWithContext(ctx, r.exchange, r.routingKey, false, false, publishing); err != nil {
		return domain.PublishResult{}, fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published video",
		"post_id", post.ID(),
		"production_id", post.ProductionID,
	)

	return domain.PublishResult{
		Destination: r.Destination(),
		PublishedAt: now,
	}, nil
}

// Destination names the exchange and routing key messages go to.
func (r *RabbitMQ) Destination() string {
	return fmt.Sprintf("rabbitmq:%s/%s", r.exchange, r.routingKey)
}

func (r *RabbitMQ) Close() error {
	var errs []error
	if r.channel != nil {
		errs = append(errs, r.channel.Close())
	}
	if r.conn != nil {
		errs = append(errs, r.conn.Close())
	}
	return errors.Join(errs...)
}
