package pipeline

import "strings"

// Kind tags an inbound event by what its routing key says it is.
type Kind int

const (
	KindUnknown Kind = iota
	KindSubmission
	KindAcknowledgement
	KindDeliveryReceipt
)

func (k Kind) String() string {
	switch k {
	case KindSubmission:
		return "submission"
	case KindAcknowledgement:
		return "acknowledgement"
	case KindDeliveryReceipt:
		return "delivery_receipt"
	default:
		return "unknown"
	}
}

const (
	submitPrefix     = "submit.sm."
	submitRespPrefix = "submit.sm.resp."
	dlrPrefix        = "dlr_thrower."
)

// Classify tags a routing key, longest-specific-match first. For submissions
// the second return is the routed connector id: the remainder of the key
// after the submit prefix.
func Classify(routingKey string) (Kind, string) {
	switch {
	case strings.HasPrefix(routingKey, submitRespPrefix):
		return KindAcknowledgement, ""
	case strings.HasPrefix(routingKey, submitPrefix):
		return KindSubmission, strings.TrimPrefix(routingKey, submitPrefix)
	case strings.HasPrefix(routingKey, dlrPrefix):
		return KindDeliveryReceipt, ""
	default:
		return KindUnknown, ""
	}
}
