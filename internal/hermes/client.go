package hermes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Client publishes run events and receives run requests.
type Client interface {
	Publish(subject string, data interface{}) error
	Subscribe(subject string, handler func(subject string, data []byte)) error
	Close()
}

// Options configures a NATS connection for run events.
type Options struct {
	URL string
	// Stream retains every vento.run subject for MaxAge. Empty disables
	// persistence.
	Stream string
	MaxAge time.Duration
	// Queue groups subscribers so each run request reaches one replica.
	Queue string
	Name  string
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "vento"
	}
	if o.MaxAge <= 0 {
		o.MaxAge = 30 * 24 * time.Hour
	}
	return o
}

type NATSClient struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	opts   Options
	logger *slog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

func NewNATSClient(ctx context.Context, opts Options, logger *slog.Logger) (*NATSClient, error) {
	if opts.URL == "" {
		return nil, errors.New("hermes: no url")
	}
	opts = opts.withDefaults()
	nc, err := nats.Connect(opts.URL,
		nats.Name(opts.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("hermes disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("hermes reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	c := &NATSClient{conn: nc, js: js, opts: opts, logger: logger}
	if opts.Stream != "" {
		if err := c.ensureStream(ctx); err != nil {
			logger.Warn("failed to ensure run event stream", "stream", opts.Stream, "error", err)
		}
	}
	return c, nil
}

func (c *NATSClient) ensureStream(ctx context.Context) error {
	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        c.opts.Stream,
		Description: "vento run lifecycle, warnings, requests and stats",
		Subjects:    []string{SubjectRunAll},
		MaxAge:      c.opts.MaxAge,
	})
	return err
}

func (c *NATSClient) Publish(subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", subject, err)
	}
	return c.conn.Publish(subject, payload)
}

// Subscribe delivers messages on subject to handler, through the configured
// queue group when there is one.
func (c *NATSClient) Subscribe(subject string, handler func(string, []byte)) error {
	cb := func(msg *nats.Msg) { handler(msg.Subject, msg.Data) }
	var (
		sub *nats.Subscription
		err error
	)
	if c.opts.Queue != "" {
		sub, err = c.conn.QueueSubscribe(subject, c.opts.Queue, cb)
	} else {
		sub, err = c.conn.Subscribe(subject, cb)
	}
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return nil
}

// Close drops subscriptions and drains pending publishes.
func (c *NATSClient) Close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("nats drain failed", "error", err)
		c.conn.Close()
	}
}
