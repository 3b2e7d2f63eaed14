// Package billing turns the opaque bill attached to a submission event into
// a structured snapshot and the user-balance state derived from it.
package billing

import (
	"encoding/json"
	"fmt"

	"go-smslog/pkg/models"
)

// Payload mirrors the serialized bill the gateway attaches to submission
// headers. Quota values are nil for users without that quota (unlimited).
type Payload struct {
	Bid  string `json:"bid"`
	User struct {
		UID      string `json:"uid"`
		Username string `json:"username"`
		Group    struct {
			GID string `json:"gid"`
		} `json:"group"`
		MTCredential struct {
			Quotas map[string]*float64 `json:"quotas"`
		} `json:"mt_credential"`
	} `json:"user"`
	Amounts map[string]float64 `json:"amounts"`
	Actions map[string]float64 `json:"actions"`
}

const (
	quotaBalance     = "balance"
	quotaSubmitCount = "submit_sm_count"
	actionSubmitRate = "decrement_submit_sm_count"
)

// RawFromHeaders picks the bill payload out of event headers, preferring the
// response-side bill over the submit-side one.
func RawFromHeaders(headers map[string]any) ([]byte, bool) {
	for _, key := range []string{models.HeaderSubmitRespBill, models.HeaderSubmitBill} {
		switch v := headers[key].(type) {
		case []byte:
			if len(v) > 0 {
				return v, true
			}
		case string:
			if v != "" {
				return []byte(v), true
			}
		}
	}
	return nil, false
}

// Parse deserializes a bill payload. Failure is fatal for the single event
// carrying it, never for the consumer.
func Parse(raw []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("billing: decode payload: %w", err)
	}
	return &p, nil
}

// TotalAmount is the per-page monetary rate: the sum of all bill amounts.
func (p *Payload) TotalAmount() float64 {
	var total float64
	for _, v := range p.Amounts {
		total += v
	}
	return total
}

// Context carries the submission-side inputs a snapshot needs besides the
// payload itself. PageCount must come from the reassembly of the same event:
// both charge fields are rate times page count.
type Context struct {
	SourceConnector      string
	Route                string
	CreatedAt            string
	Priority             int
	DestinationAddr      string
	SourceAddr           string
	ScheduleDeliveryTime string
	ValidityPeriod       string
	PageCount            int
}

// Snapshot derives the immutable bill snapshot and the user-balance state
// from one parsed payload.
func Snapshot(p *Payload, ctx Context) (models.BillSnapshot, models.UserBalance) {
	amountRate := p.TotalAmount()
	smsCountRate := p.Actions[actionSubmitRate]
	balance := p.User.MTCredential.Quotas[quotaBalance]
	submitCount := p.User.MTCredential.Quotas[quotaSubmitCount]

	snap := models.BillSnapshot{
		BillID: p.Bid,
		User: models.BillUser{
			ID:          p.User.UID,
			GroupID:     p.User.Group.GID,
			Username:    p.User.Username,
			Balance:     balance,
			SubmitCount: submitCount,
		},
		SourceConnector:      ctx.SourceConnector,
		RoutedConnectorID:    ctx.Route,
		CreatedAt:            ctx.CreatedAt,
		Priority:             ctx.Priority,
		DestinationAddr:      ctx.DestinationAddr,
		SourceAddr:           ctx.SourceAddr,
		ScheduleDeliveryTime: ctx.ScheduleDeliveryTime,
		ValidityPeriod:       ctx.ValidityPeriod,
		PageCount:            ctx.PageCount,
		AmountRate:           amountRate,
		AmountCharge:         amountRate * float64(ctx.PageCount),
		SMSCountRate:         smsCountRate,
		SMSCountCharge:       smsCountRate * float64(ctx.PageCount),
	}

	balanceDoc := models.UserBalance{
		UserID:      p.User.UID,
		Balance:     balance,
		SubmitCount: submitCount,
	}

	return snap, balanceDoc
}
