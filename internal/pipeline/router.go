// Package pipeline routes inbound gateway events to the per-message and
// user-balance documents in the store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"go-smslog/internal/billing"
	"go-smslog/internal/observability"
	"go-smslog/internal/sanitize"
	"go-smslog/internal/smpp"
	"go-smslog/internal/store"
	"go-smslog/pkg/models"
)

const dlrListField = "dlr"

const dlrTimeLayout = "2006-01-02 15:04:05"

// Config wires a Router.
type Config struct {
	Store          store.Store
	LogCollection  string
	UserCollection string
	Privacy        bool
	Metrics        observability.MetricsCollector
	Logger         *logrus.Logger
}

// Router classifies each inbound event and drives the matching record
// builder and store writes. One Router serves the single consuming task;
// it holds no per-event state.
type Router struct {
	store          store.Store
	logCollection  string
	userCollection string
	privacy        bool
	metrics        observability.MetricsCollector
	logger         *logrus.Logger
	now            func() time.Time
}

func NewRouter(cfg Config) *Router {
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewInMemoryMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.GetLogger()
	}
	return &Router{
		store:          cfg.Store,
		logCollection:  cfg.LogCollection,
		userCollection: cfg.UserCollection,
		privacy:        cfg.Privacy,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
		now:            time.Now,
	}
}

// SetStore swaps the live store handle after a store reconnect. The single
// consuming task is parked while that happens, so no synchronization is
// needed.
func (r *Router) SetStore(s store.Store) {
	r.store = s
}

// Handle processes one delivery. A nil return means the event is done and
// must be acknowledged, including events whose content could not be
// processed. A non-nil return is a store transport failure: the event stays
// unacknowledged for redelivery and the caller recycles the connection.
func (r *Router) Handle(ctx context.Context, ev *models.InboundEvent) error {
	r.metrics.IncReceived()

	kind, route := Classify(ev.RoutingKey)
	logger := r.logger.WithFields(logrus.Fields{
		"message_id":  ev.MessageID,
		"routing_key": ev.RoutingKey,
	})

	switch kind {
	case KindSubmission:
		return r.handleSubmission(ctx, ev, route, logger)
	case KindAcknowledgement:
		return r.handleAck(ctx, ev, logger)
	case KindDeliveryReceipt:
		return r.handleDLR(ctx, ev, logger)
	default:
		r.metrics.IncUnknownRoute()
		logger.Error("Unknown route")
		return nil
	}
}

func (r *Router) handleSubmission(ctx context.Context, ev *models.InboundEvent, route string, logger *logrus.Entry) error {
	logger.Info("Processing submission")

	rec, balance, err := r.buildSubmission(ev, route)
	if err != nil {
		r.metrics.IncMalformed()
		logger.WithError(err).Error("Dropping malformed submission")
		return nil
	}

	logDoc := sanitize.Document(rec.Document(r.privacy))
	userDoc := sanitize.Document(balance.Document())

	if err := r.store.UpsertMerge(ctx, r.logCollection, ev.MessageID, logDoc); err != nil {
		r.metrics.IncStoreError()
		return fmt.Errorf("pipeline: store submission %s: %w", ev.MessageID, err)
	}
	r.metrics.IncStoreWrite()

	if err := r.store.UpsertMerge(ctx, r.userCollection, balance.UserID, userDoc); err != nil {
		r.metrics.IncStoreError()
		return fmt.Errorf("pipeline: store user balance %s: %w", balance.UserID, err)
	}
	r.metrics.IncStoreWrite()

	r.metrics.IncSubmission()
	logger.WithFields(logrus.Fields{
		"route":      route,
		"page_count": rec.PageCount,
		"user_id":    balance.UserID,
	}).Debug("Submission stored")
	return nil
}

// buildSubmission runs reassembly, charset resolution and billing extraction
// for one submission event. Reassembly must come first: the billing charges
// are rate times the page count it produces.
func (r *Router) buildSubmission(ev *models.InboundEvent, route string) (*models.SubmissionRecord, *models.UserBalance, error) {
	first, err := smpp.ParseChain(ev.Body)
	if err != nil {
		return nil, nil, err
	}
	reassembled, err := smpp.Reassemble(first)
	if err != nil {
		return nil, nil, err
	}

	params := first.Params
	decoded := smpp.DecodeText(params.DataCoding, reassembled.Raw)

	billRaw, ok := billing.RawFromHeaders(ev.Headers)
	if !ok {
		return nil, nil, errors.New("pipeline: no billing payload in headers")
	}
	payload, err := billing.Parse(billRaw)
	if err != nil {
		return nil, nil, err
	}

	createdAt := ev.HeaderString(models.HeaderCreatedAt)
	source := ev.HeaderString(models.HeaderSourceConnector)

	var validity *string
	if _, ok := ev.Headers[models.HeaderExpiration]; ok {
		v := ev.HeaderString(models.HeaderExpiration)
		validity = &v
	}

	snap, balance := billing.Snapshot(payload, billing.Context{
		SourceConnector:      source,
		Route:                route,
		CreatedAt:            createdAt,
		Priority:             ev.Priority,
		DestinationAddr:      params.DestinationAddr,
		SourceAddr:           params.SourceAddr,
		ScheduleDeliveryTime: params.ScheduleDeliveryTime,
		ValidityPeriod:       params.ValidityPeriod,
		PageCount:            reassembled.PageCount,
	})

	rec := &models.SubmissionRecord{
		CreatedAt:            createdAt,
		Priority:             ev.Priority,
		Source:               source,
		Route:                route,
		DestinationAddr:      params.DestinationAddr,
		SourceAddr:           params.SourceAddr,
		ScheduleDeliveryTime: params.ScheduleDeliveryTime,
		ValidityPeriod:       params.ValidityPeriod,
		DataCoding:           params.DataCoding,
		Validity:             validity,
		Status:               first.Status,
		PageCount:            reassembled.PageCount,
		ShortMessageRaw:      reassembled.Raw,
		ShortMessageHex:      reassembled.Hex,
		ShortMessageDecoded:  decoded,
		Bill:                 snap,
	}
	return rec, &balance, nil
}

// handleAck merges the acknowledgement sub-object into the per-message
// document. An upsert creates the document shell when the acknowledgement
// arrives before its submission, symmetric with delivery-receipt handling.
func (r *Router) handleAck(ctx context.Context, ev *models.InboundEvent, logger *logrus.Entry) error {
	logger.Info("Processing acknowledgement")

	first, err := smpp.ParseChain(ev.Body)
	if err != nil {
		r.metrics.IncMalformed()
		logger.WithError(err).Error("Dropping malformed acknowledgement")
		return nil
	}

	doc := sanitize.Document(map[string]any{
		"ack": map[string]any{
			"created_at": ev.Header(models.HeaderCreatedAt),
			"status":     first.Status,
		},
	})

	if err := r.store.UpsertMerge(ctx, r.logCollection, ev.MessageID, doc); err != nil {
		r.metrics.IncStoreError()
		return fmt.Errorf("pipeline: store ack %s: %w", ev.MessageID, err)
	}
	r.metrics.IncStoreWrite()
	r.metrics.IncAck()
	return nil
}

// handleDLR appends one delivery-receipt entry to the message's dlr list:
// all delivery headers, stamped with the local receive time. The append
// creates the document with an empty list when the receipt arrives before
// its submission, and never rewrites prior entries.
func (r *Router) handleDLR(ctx context.Context, ev *models.InboundEvent, logger *logrus.Entry) error {
	logger.WithField("level", ev.Header(models.HeaderLevel)).Info("Processing delivery receipt")

	entry := make(map[string]any, len(ev.Headers)+1)
	for k, v := range ev.Headers {
		entry[k] = v
	}
	entry[models.HeaderCreatedAt] = r.now().Format(dlrTimeLayout)

	if r.privacy {
		if text, ok := entry[models.HeaderText].(string); ok && text != "" {
			entry[models.HeaderText] = models.CharContentPlaceholder(utf8.RuneCountInString(text))
		}
	}
	sanitize.Document(entry)

	if err := r.store.AppendToList(ctx, r.logCollection, ev.MessageID, dlrListField, entry); err != nil {
		r.metrics.IncStoreError()
		return fmt.Errorf("pipeline: store dlr %s: %w", ev.MessageID, err)
	}
	r.metrics.IncStoreWrite()
	r.metrics.IncDLR()
	return nil
}
