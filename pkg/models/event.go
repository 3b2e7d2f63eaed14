package models

// InboundEvent is one message drawn from the broker queue. It is consumed
// exactly once per delivery and acknowledged only after the pipeline has
// finished with it.
type InboundEvent struct {
	RoutingKey string
	MessageID  string
	Priority   int
	Headers    map[string]any
	Body       []byte
}

// Header keys set by the gateway on published events.
const (
	HeaderCreatedAt       = "created_at"
	HeaderSourceConnector = "source_connector"
	HeaderExpiration      = "expiration"
	HeaderLevel           = "level"
	HeaderText            = "text"
	HeaderSubmitBill      = "submit_sm_bill"
	HeaderSubmitRespBill  = "submit_sm_resp_bill"
)

// Header returns the raw header value, or nil when absent.
func (e *InboundEvent) Header(key string) any {
	if e.Headers == nil {
		return nil
	}
	return e.Headers[key]
}

// HeaderString returns the header as a string, or "" when absent or not
// textual.
func (e *InboundEvent) HeaderString(key string) string {
	switch v := e.Header(key).(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}
