//go:build integration

package publisher

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"shorts_pipeline/internal/domain"
	"shorts_pipeline/internal/testutil"
)

type PublisherIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	url       string
	logger    *slog.Logger
}

func TestPublisherIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PublisherIntegrationSuite))
}

func (s *PublisherIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	container, err := rabbitmq.Run(s.ctx, "rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(wait.ForLog("Server startup complete").WithStartupTimeout(time.Minute)),
	)
	s.Require().NoError(err)
	s.container = container

	s.url, err = container.AmqpURL(s.ctx)
	s.Require().NoError(err)
}

func (s *PublisherIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

// config returns a topology unique to the calling test.
func (s *PublisherIntegrationSuite) config(name string) Config {
	return Config{
		URL:        s.url,
		Exchange:   "shorts." + name,
		RoutingKey: "videos." + name,
		QueueName:  "uploads." + name,
	}
}

func (s *PublisherIntegrationSuite) rendered(id string) *domain.PostData {
	post, err := domain.NewPostData(testutil.Post(id, 10))
	s.Require().NoError(err)
	post.Include()
	s.Require().NoError(post.SetNarration("Narration " + id))
	s.Require().NoError(post.SetFinalVideoPath("media/final_output/post_id_" + id + "_final.mp4"))
	return post
}

// next polls the queue with basic.get until a message arrives.
func (s *PublisherIntegrationSuite) next(queue string) amqp.Delivery {
	conn, err := amqp.Dial(s.url)
	s.Require().NoError(err)
	defer conn.Close()
	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	var delivery amqp.Delivery
	s.Require().Eventually(func() bool {
		msg, ok, err := ch.Get(queue, true)
		s.Require().NoError(err)
		delivery = msg
		return ok
	}, 5*time.Second, 50*time.Millisecond)
	return delivery
}

func (s *PublisherIntegrationSuite) TestNewRabbitMQ_DeclaresTopology() {
	cfg := s.config("topology")
	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	s.NoError(pub.Close())

	conn, err := amqp.Dial(s.url)
	s.Require().NoError(err)
	defer conn.Close()
	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	s.NoError(ch.ExchangeDeclarePassive(cfg.Exchange, amqp.ExchangeDirect, true, false, false, false, nil))
	q, err := ch.QueueDeclarePassive(cfg.QueueName, true, false, false, false, nil)
	s.NoError(err)
	s.Equal(0, q.Messages)
}

func (s *PublisherIntegrationSuite) TestUpload_PublishesPersistentMessage() {
	cfg := s.config("upload")
	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	post := s.rendered("p1")
	result, err := pub.Upload(s.ctx, post)
	s.Require().NoError(err)
	s.Equal("rabbitmq:shorts.upload/videos.upload", result.Destination)

	msg := s.next(cfg.QueueName)
	s.Equal("application/json", msg.ContentType)
	s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)
	s.Equal(post.ProductionID, msg.MessageId)

	var body VideoMessage
	s.Require().NoError(json.Unmarshal(msg.Body, &body))
	s.Equal(ActionVideoReady, body.Action)
	s.Equal("p1", body.PostID)
	s.Equal("Narration p1", body.Narration)
	s.Equal("media/final_output/post_id_p1_final.mp4", body.VideoPath)
	s.WithinDuration(result.PublishedAt, body.Timestamp, time.Second)
}

func (s *PublisherIntegrationSuite) TestUpload_RejectsUnrenderedPost() {
	cfg := s.config("unrendered")
	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	post, err := domain.NewPostData(testutil.Post("p2", 1))
	s.Require().NoError(err)
	post.Include()

	_, err = pub.Upload(s.ctx, post)
	s.ErrorIs(err, ErrNotRendered)
}
