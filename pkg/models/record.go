package models

import (
	"fmt"
	"unicode/utf8"
)

// SubmissionRecord is the canonical view of one submission event after
// fragment reassembly and charset resolution. It is built once per event and
// not mutated afterwards.
type SubmissionRecord struct {
	CreatedAt            string
	Priority             int
	Source               string
	Route                string
	DestinationAddr      string
	SourceAddr           string
	ScheduleDeliveryTime string
	ValidityPeriod       string
	DataCoding           *int
	Validity             *string
	Status               string
	PageCount            int
	ShortMessageRaw      []byte
	ShortMessageHex      string
	ShortMessageDecoded  string
	Bill                 BillSnapshot
}

// Document renders the record as the per-message stored document. With
// privacy enabled the three message-content fields are replaced by size-only
// placeholders; the hex placeholder reports the length of the hex form
// itself, twice the raw byte count.
func (r *SubmissionRecord) Document(privacy bool) map[string]any {
	var shortMessage, binaryMessage, decoded any
	if privacy {
		shortMessage = ByteContentPlaceholder(len(r.ShortMessageRaw))
		binaryMessage = ByteContentPlaceholder(len(r.ShortMessageHex))
		decoded = CharContentPlaceholder(utf8.RuneCountInString(r.ShortMessageDecoded))
	} else {
		shortMessage = r.ShortMessageRaw
		binaryMessage = r.ShortMessageHex
		decoded = r.ShortMessageDecoded
	}

	return map[string]any{
		"created_at":             r.CreatedAt,
		"priority":               r.Priority,
		"source":                 r.Source,
		"route":                  r.Route,
		"destination_addr":       r.DestinationAddr,
		"source_addr":            r.SourceAddr,
		"schedule_delivery_time": r.ScheduleDeliveryTime,
		"validity_period":        r.ValidityPeriod,
		"data_coding":            nullable(r.DataCoding),
		"validity":               nullable(r.Validity),
		"status":                 r.Status,
		"page_count":             r.PageCount,
		"short_message":          shortMessage,
		"binary_message":         binaryMessage,
		"short_message_decoded":  decoded,
		"bill":                   r.Bill.Document(),
	}
}

// BillUser identifies the charged user inside a bill snapshot. Quota values
// are nil when the user has no such quota configured (unlimited).
type BillUser struct {
	ID          string
	GroupID     string
	Username    string
	Balance     *float64
	SubmitCount *float64
}

// BillSnapshot is the billing context captured from one submission event.
// Charge fields are rate multiplied by the reassembled page count.
type BillSnapshot struct {
	BillID               string
	User                 BillUser
	SourceConnector      string
	RoutedConnectorID    string
	CreatedAt            string
	Priority             int
	DestinationAddr      string
	SourceAddr           string
	ScheduleDeliveryTime string
	ValidityPeriod       string
	PageCount            int
	AmountRate           float64
	AmountCharge         float64
	SMSCountRate         float64
	SMSCountCharge       float64
}

func (b *BillSnapshot) Document() map[string]any {
	return map[string]any{
		"_id": b.BillID,
		"user": map[string]any{
			"_id":      b.User.ID,
			"group":    b.User.GroupID,
			"username": b.User.Username,
			"quota": map[string]any{
				"balance":         nullable(b.User.Balance),
				"submit_sm_count": nullable(b.User.SubmitCount),
			},
		},
		"source_connector":       b.SourceConnector,
		"routed_cid":             b.RoutedConnectorID,
		"created_at":             b.CreatedAt,
		"priority":               b.Priority,
		"destination_addr":       b.DestinationAddr,
		"source_addr":            b.SourceAddr,
		"schedule_delivery_time": b.ScheduleDeliveryTime,
		"validity_period":        b.ValidityPeriod,
		"page_count":             b.PageCount,
		"amount_rate":            b.AmountRate,
		"amount_charge":          b.AmountCharge,
		"sms_count_rate":         b.SMSCountRate,
		"sms_count_charge":       b.SMSCountCharge,
	}
}

// UserBalance is the latest known quota state for one user, overwritten on
// every submission. The document keys match the gateway's credential naming,
// spaces included.
type UserBalance struct {
	UserID      string
	Balance     *float64
	SubmitCount *float64
}

func (u *UserBalance) Document() map[string]any {
	return map[string]any{
		"mt_messaging_cred quota balance":   nullable(u.Balance),
		"mt_messaging_cred quota sms_count": nullable(u.SubmitCount),
	}
}

// ByteContentPlaceholder is the privacy stand-in for binary message content.
func ByteContentPlaceholder(n int) string {
	return fmt.Sprintf("** %d byte content **", n)
}

// CharContentPlaceholder is the privacy stand-in for textual message content.
func CharContentPlaceholder(n int) string {
	return fmt.Sprintf("** %d char content **", n)
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
