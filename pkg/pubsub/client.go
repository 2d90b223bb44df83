// Package pubsub wraps the Pub/Sub v2 client for the outbox relay.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/marketplace-commissions/pkg/config"
	"github.com/angelmondragon/marketplace-commissions/pkg/gcp"
	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("at least one topic is required")
)

// Client is scoped to one project and the set of topics the relay routes to.
type Client struct {
	ps      *pubsub.Client
	project string
	topics  []string
}

// NewClient connects to Pub/Sub and fails unless every topic already exists.
// Topics may be short ids or full resource names.
func NewClient(ctx context.Context, cfg config.GCPConfig, topics []string, logg *logger.Logger, extra ...option.ClientOption) (*Client, error) {
	project := strings.TrimSpace(cfg.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	c := &Client{project: project}
	for _, t := range topics {
		if name := c.resource(t); name != "" {
			c.topics = append(c.topics, name)
		}
	}
	if len(c.topics) == 0 {
		return nil, errNoTopics
	}

	ps, err := pubsub.NewClient(ctx, project, append(gcp.ClientOptions(cfg), extra...)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c.ps = ps
	if err := c.Ping(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"project": project, "topics": c.topics}), "pubsub connected")
	}
	return c, nil
}

// Publisher returns a handle for topic, or nil when the client is unusable.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.ps == nil {
		return nil
	}
	name := c.resource(topic)
	if name == "" {
		return nil
	}
	return c.ps.Publisher(name)
}

// Ping looks up every routed topic.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.ps == nil {
		return errors.New("pubsub client not initialized")
	}
	for _, name := range c.topics {
		_, err := c.ps.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
		switch {
		case err == nil:
		case status.Code(err) == codes.NotFound:
			return fmt.Errorf("topic %s does not exist", name)
		default:
			return fmt.Errorf("looking up %s: %w", name, err)
		}
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.ps == nil {
		return nil
	}
	return c.ps.Close()
}

func (c *Client) resource(topic string) string {
	topic = strings.TrimSpace(topic)
	switch {
	case topic == "" || c.project == "":
		return ""
	case strings.HasPrefix(topic, "projects/") && strings.Contains(topic, "/topics/"):
		return topic
	default:
		return "projects/" + c.project + "/topics/" + topic
	}
}
