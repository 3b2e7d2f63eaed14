// Package broker owns the AMQP connection lifecycle: subscription setup,
// the manual-ack consume loop, and the reconnect state machine that keeps
// the pipeline alive across transient broker failures.
package broker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"go-smslog/internal/observability"
	"go-smslog/internal/retry"
	"go-smslog/pkg/models"
)

// State of the connection lifecycle. Connecting covers the TCP dial;
// Authenticating covers the AMQP handshake's SASL exchange, which the client
// folds into the same dial call, so the supervisor passes through it between
// a successful dial and Ready.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateReady
	StateConsuming
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateConsuming:
		return "consuming"
	case StateClosing:
		return "closing"
	default:
		return "disconnected"
	}
}

// Subscription contract: one durable queue on the gateway's topic exchange,
// bound to the three routing patterns, consumed under one named tag.
const (
	ExchangeName = "messaging"
	QueueName    = "smslog_queue"
	ConsumerTag  = "smslog_consumer"
)

var bindingKeys = []string{"submit.sm.*", "submit.sm.resp.*", "dlr_thrower.*"}

// Handler processes one inbound event. A nil return acknowledges the event;
// a non-nil return is a transport failure that leaves it unacknowledged and
// recycles the connection.
type Handler func(ctx context.Context, ev *models.InboundEvent) error

// Config is the broker connection surface.
type Config struct {
	Host      string
	Port      int
	VHost     string
	Username  string
	Password  string
	Heartbeat time.Duration
}

// URL renders the amqp:// URI for this config.
func (c Config) URL() string {
	vhost := "/"
	if c.VHost != "" && c.VHost != "/" {
		vhost = "/" + strings.TrimPrefix(c.VHost, "/")
	}
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   vhost,
	}
	return u.String()
}

// terminalError marks a failure that stops the pipeline regardless of the
// remaining retry budget, such as store-supervisor exhaustion.
type terminalError struct {
	err error
}

func (e terminalError) Error() string {
	return "broker: terminal: " + e.err.Error()
}

func (e terminalError) Unwrap() error {
	return e.err
}

// Supervisor drives one broker connection through its state machine. It is
// owned by the single pipeline task.
type Supervisor struct {
	cfg     Config
	policy  *retry.Policy
	metrics observability.MetricsCollector
	logger  *logrus.Logger

	dial func(url string, cfg amqp.Config) (connection, error)

	state atomic.Int32
	conn  connection
	ch    channel
}

func NewSupervisor(cfg Config, policy *retry.Policy, metrics observability.MetricsCollector, logger *logrus.Logger) *Supervisor {
	if metrics == nil {
		metrics = observability.NewInMemoryMetrics()
	}
	if logger == nil {
		logger = observability.GetLogger()
	}
	return &Supervisor{
		cfg:     cfg,
		policy:  policy,
		metrics: metrics,
		logger:  logger,
		dial:    dialAMQP,
	}
}

// State reports the current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
	s.logger.WithField("state", st.String()).Debug("Broker state")
}

// Run drives the state machine until terminal shutdown. storeConnect runs
// after every (re)connect reaches Ready and before consumption starts; its
// failure is fatal even when broker retries remain. Interrupt (ctx
// cancellation) disables future reconnects before tearing down.
func (s *Supervisor) Run(ctx context.Context, storeConnect func(context.Context) error, handler Handler) error {
	for {
		err := s.session(ctx, storeConnect, handler)
		s.teardown()

		if ctx.Err() != nil {
			s.policy.Disable()
			s.logger.Warn("Interrupted, shutting down")
			return ctx.Err()
		}

		var terminal terminalError
		if errors.As(err, &terminal) {
			s.logger.WithError(terminal.err).Error("Fatal failure, stopping pipeline")
			return err
		}

		s.logger.WithError(err).Error("Broker session failed")
		if !s.policy.Next() {
			s.logger.Error("No more retries, stopping pipeline")
			return err
		}

		s.metrics.IncReconnect()
		s.logger.WithField("delay", s.policy.Delay().String()).Info("Reconnecting to broker")
		if werr := s.policy.Wait(ctx); werr != nil {
			s.policy.Disable()
			return werr
		}
	}
}

// session walks one pass of the state machine: connect, authenticate, set up
// the subscription, bring up the store, then consume until a transport
// failure or cancellation.
func (s *Supervisor) session(ctx context.Context, storeConnect func(context.Context) error, handler Handler) error {
	s.setState(StateConnecting)
	s.logger.WithFields(logrus.Fields{
		"host":  s.cfg.Host,
		"port":  s.cfg.Port,
		"vhost": s.cfg.VHost,
	}).Info("Connecting to broker")

	conn, err := s.dial(s.cfg.URL(), amqp.Config{
		Vhost:     s.cfg.VHost,
		Heartbeat: s.cfg.Heartbeat,
	})
	if err != nil {
		return fmt.Errorf("broker: connect: %w", err)
	}
	s.conn = conn
	s.setState(StateAuthenticating)
	s.logger.WithField("username", s.cfg.Username).Info("Authenticated")
	s.setState(StateReady)

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("broker: open channel: %w", err)
	}
	s.ch = ch

	if err := ch.ExchangeDeclare(ExchangeName, "topic"); err != nil {
		return fmt.Errorf("broker: declare exchange: %w", err)
	}
	if err := ch.QueueDeclare(QueueName); err != nil {
		return fmt.Errorf("broker: declare queue: %w", err)
	}
	for _, key := range bindingKeys {
		if err := ch.QueueBind(QueueName, key, ExchangeName); err != nil {
			return fmt.Errorf("broker: bind %s: %w", key, err)
		}
	}

	if err := storeConnect(ctx); err != nil {
		return terminalError{fmt.Errorf("store unavailable: %w", err)}
	}

	deliveries, err := ch.Consume(QueueName, ConsumerTag)
	if err != nil {
		return fmt.Errorf("broker: start consumer: %w", err)
	}
	s.setState(StateConsuming)
	s.logger.Info("Starting message processing")

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr == nil {
				return errors.New("broker: connection closed")
			}
			return fmt.Errorf("broker: connection closed: %w", amqpErr)
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("broker: delivery stream closed")
			}
			if err := s.process(ctx, d, handler); err != nil {
				return err
			}
		}
	}
}

func (s *Supervisor) process(ctx context.Context, d amqp.Delivery, handler Handler) error {
	ev := eventFromDelivery(d)
	if err := handler(ctx, ev); err != nil {
		// Leave the event unacknowledged for redelivery.
		return fmt.Errorf("broker: handler: %w", err)
	}
	if err := d.Ack(false); err != nil {
		return fmt.Errorf("broker: ack %s: %w", ev.MessageID, err)
	}
	return nil
}

// teardown releases the channel and connection. Secondary errors are
// swallowed: the connection is already being abandoned.
func (s *Supervisor) teardown() {
	s.setState(StateClosing)
	if s.ch != nil {
		_ = s.ch.Cancel(ConsumerTag)
		_ = s.ch.Close()
		s.ch = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.setState(StateDisconnected)
}
