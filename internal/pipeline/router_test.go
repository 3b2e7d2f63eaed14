package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-smslog/internal/observability"
	"go-smslog/internal/smpp"
	"go-smslog/pkg/models"
)

const (
	testLogCollection  = "sms_log"
	testUserCollection = "sms_users"
)

const testBill = `{
	"bid": "bill-1",
	"user": {
		"uid": "user-1",
		"username": "alice",
		"group": {"gid": "group-1"},
		"mt_credential": {"quotas": {"balance": 50, "submit_sm_count": 10}}
	},
	"amounts": {"submit_sm": 0.05},
	"actions": {"decrement_submit_sm_count": 1}
}`

func newTestRouter(privacy bool) (*Router, *MockStore, *observability.InMemoryMetrics) {
	st := NewMockStore()
	metrics := observability.NewInMemoryMetrics()
	r := NewRouter(Config{
		Store:          st,
		LogCollection:  testLogCollection,
		UserCollection: testUserCollection,
		Privacy:        privacy,
		Metrics:        metrics,
	})
	r.now = func() time.Time { return time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC) }
	return r, st, metrics
}

func chainBody(t *testing.T, first *smpp.Fragment) []byte {
	t.Helper()
	body, err := json.Marshal(first)
	require.NoError(t, err)
	return body
}

func submissionEvent(t *testing.T, first *smpp.Fragment) *models.InboundEvent {
	t.Helper()
	return &models.InboundEvent{
		RoutingKey: "submit.sm.smpp-01",
		MessageID:  "msg-1",
		Priority:   2,
		Headers: map[string]any{
			models.HeaderCreatedAt:       "2024-05-01 12:00:00",
			models.HeaderSourceConnector: "http-api",
			models.HeaderSubmitBill:      testBill,
		},
		Body: chainBody(t, first),
	}
}

func twoPartUDHChain() *smpp.Fragment {
	header := []byte{0x05, 0x00, 0x03, 0x2A, 0x02, 0x01}
	first := &smpp.Fragment{
		Params: smpp.Params{
			ShortMessage:    append(append([]byte{}, header...), "AB"...),
			EsmClass:        0x40,
			DestinationAddr: "41787078880",
			SourceAddr:      "SENDER",
		},
		Status: "ESME_ROK",
	}
	first.Next = &smpp.Fragment{
		Params: smpp.Params{ShortMessage: append(append([]byte{}, header...), "CD"...)},
		Status: "ESME_ROK",
	}
	return first
}

func TestHandle_UnknownRoute(t *testing.T) {
	r, st, metrics := newTestRouter(false)

	err := r.Handle(context.Background(), &models.InboundEvent{RoutingKey: "deliver.sm.x", MessageID: "m"})

	assert.NoError(t, err)
	assert.Empty(t, st.Upserts)
	assert.Empty(t, st.Appends)
	assert.Equal(t, int64(1), metrics.GetUnknownRoutes())
}

func TestHandle_SubmissionStoresMessageAndBalance(t *testing.T) {
	r, st, metrics := newTestRouter(false)

	err := r.Handle(context.Background(), submissionEvent(t, twoPartUDHChain()))
	require.NoError(t, err)
	require.Len(t, st.Upserts, 2)

	logCall := st.Upserts[0]
	assert.Equal(t, testLogCollection, logCall.Collection)
	assert.Equal(t, "msg-1", logCall.Key)
	assert.Equal(t, []byte("ABCD"), logCall.Doc["short_message"])
	assert.Equal(t, "41424344", logCall.Doc["binary_message"])
	assert.Equal(t, "ABCD", logCall.Doc["short_message_decoded"])
	assert.Equal(t, 2, logCall.Doc["page_count"])
	assert.Equal(t, "smpp-01", logCall.Doc["route"])
	assert.Equal(t, "http-api", logCall.Doc["source"])
	assert.Equal(t, "ESME_ROK", logCall.Doc["status"])
	// No data_coding and no expiration header: both null, both sentineled.
	assert.Equal(t, "None", logCall.Doc["data_coding"])
	assert.Equal(t, "None", logCall.Doc["validity"])

	bill := logCall.Doc["bill"].(map[string]any)
	assert.Equal(t, "bill-1", bill["_id"])
	assert.Equal(t, 2, bill["page_count"])
	assert.InDelta(t, 0.05, bill["amount_rate"].(float64), 1e-9)
	assert.InDelta(t, 0.10, bill["amount_charge"].(float64), 1e-9)
	assert.Equal(t, float64(2), bill["sms_count_charge"])

	userCall := st.Upserts[1]
	assert.Equal(t, testUserCollection, userCall.Collection)
	assert.Equal(t, "user-1", userCall.Key)
	assert.Equal(t, float64(50), userCall.Doc["mt_messaging_cred quota balance"])
	assert.Equal(t, float64(10), userCall.Doc["mt_messaging_cred quota sms_count"])

	assert.Equal(t, int64(1), metrics.GetSubmissions())
	assert.Equal(t, int64(2), metrics.GetStoreWrites())
}

func TestHandle_SubmissionPrivacyPlaceholders(t *testing.T) {
	r, st, _ := newTestRouter(true)

	first := &smpp.Fragment{
		Params: smpp.Params{ShortMessage: make([]byte, 100)},
		Status: "ESME_ROK",
	}
	err := r.Handle(context.Background(), submissionEvent(t, first))
	require.NoError(t, err)
	require.Len(t, st.Upserts, 2)

	doc := st.Upserts[0].Doc
	assert.Equal(t, "** 100 byte content **", doc["short_message"])
	// The hex form is twice as long as the raw payload.
	assert.Equal(t, "** 200 byte content **", doc["binary_message"])
	assert.Equal(t, "** 100 char content **", doc["short_message_decoded"])
}

func TestHandle_SubmissionMalformedBodyIsSwallowed(t *testing.T) {
	r, st, metrics := newTestRouter(false)

	ev := submissionEvent(t, twoPartUDHChain())
	ev.Body = []byte("not a chain")

	err := r.Handle(context.Background(), ev)
	assert.NoError(t, err)
	assert.Empty(t, st.Upserts)
	assert.Equal(t, int64(1), metrics.GetMalformed())
}

func TestHandle_SubmissionMissingBillIsSwallowed(t *testing.T) {
	r, st, metrics := newTestRouter(false)

	ev := submissionEvent(t, twoPartUDHChain())
	delete(ev.Headers, models.HeaderSubmitBill)

	err := r.Handle(context.Background(), ev)
	assert.NoError(t, err)
	assert.Empty(t, st.Upserts)
	assert.Equal(t, int64(1), metrics.GetMalformed())
}

func TestHandle_SubmissionStoreFailurePropagates(t *testing.T) {
	r, st, metrics := newTestRouter(false)
	st.UpsertErr = errors.New("server selection timeout")

	err := r.Handle(context.Background(), submissionEvent(t, twoPartUDHChain()))
	assert.Error(t, err)
	assert.Equal(t, int64(1), metrics.GetStoreErrors())
}

func TestHandle_AckMergesSubObject(t *testing.T) {
	r, st, metrics := newTestRouter(false)

	ev := &models.InboundEvent{
		RoutingKey: "submit.sm.resp.smpp-01",
		MessageID:  "msg-1",
		Headers:    map[string]any{models.HeaderCreatedAt: "2024-05-01 12:00:05"},
		Body:       chainBody(t, &smpp.Fragment{Status: "ESME_ROK"}),
	}

	err := r.Handle(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, st.Upserts, 1)

	ack := st.Upserts[0].Doc["ack"].(map[string]any)
	assert.Equal(t, "2024-05-01 12:00:05", ack["created_at"])
	assert.Equal(t, "ESME_ROK", ack["status"])
	assert.Equal(t, int64(1), metrics.GetAcks())
}

func TestHandle_AckBeforeSubmissionCreatesShell(t *testing.T) {
	r, st, _ := newTestRouter(false)

	ev := &models.InboundEvent{
		RoutingKey: "submit.sm.resp.smpp-01",
		MessageID:  "early-ack",
		Body:       chainBody(t, &smpp.Fragment{Status: "ESME_RTHROTTLED"}),
	}

	err := r.Handle(context.Background(), ev)
	require.NoError(t, err)

	doc, err := st.FetchOne(context.Background(), testLogCollection, "early-ack")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Len(t, doc, 1, "shell holds only the ack field")
	ack := doc["ack"].(map[string]any)
	// Missing created_at header is null, sentineled by sanitization.
	assert.Equal(t, "None", ack["created_at"])
	assert.Equal(t, "ESME_RTHROTTLED", ack["status"])
}

func TestHandle_AckMalformedBodyIsSwallowed(t *testing.T) {
	r, st, metrics := newTestRouter(false)

	ev := &models.InboundEvent{
		RoutingKey: "submit.sm.resp.smpp-01",
		MessageID:  "msg-1",
		Body:       []byte("{broken"),
	}

	err := r.Handle(context.Background(), ev)
	assert.NoError(t, err)
	assert.Empty(t, st.Upserts)
	assert.Equal(t, int64(1), metrics.GetMalformed())
}

func dlrEvent(messageID string, headers map[string]any) *models.InboundEvent {
	if headers == nil {
		headers = map[string]any{}
	}
	return &models.InboundEvent{
		RoutingKey: "dlr_thrower.http",
		MessageID:  messageID,
		Headers:    headers,
	}
}

func TestHandle_DLRAppendsEntry(t *testing.T) {
	r, st, metrics := newTestRouter(false)

	err := r.Handle(context.Background(), dlrEvent("msg-1", map[string]any{
		models.HeaderLevel: int32(1),
		"message_status":   "DELIVRD",
		"id-smsc":          "abc",
		models.HeaderText:  "hello there",
	}))
	require.NoError(t, err)
	require.Len(t, st.Appends, 1)

	call := st.Appends[0]
	assert.Equal(t, testLogCollection, call.Collection)
	assert.Equal(t, "msg-1", call.Key)
	assert.Equal(t, "dlr", call.Field)

	entry := call.Item.(map[string]any)
	assert.Equal(t, "DELIVRD", entry["message_status"])
	assert.Equal(t, "abc", entry["id_smsc"], "dashed header key is rewritten")
	assert.Equal(t, "hello there", entry["text"])
	assert.Equal(t, "2024-05-01 12:30:00", entry["created_at"])
	assert.Equal(t, int64(1), metrics.GetDLRs())
}

func TestHandle_TwoDLRsPreserveArrivalOrder(t *testing.T) {
	r, st, _ := newTestRouter(false)

	require.NoError(t, r.Handle(context.Background(), dlrEvent("msg-1", map[string]any{"message_status": "ENROUTE"})))
	require.NoError(t, r.Handle(context.Background(), dlrEvent("msg-1", map[string]any{"message_status": "DELIVRD"})))

	doc, err := st.FetchOne(context.Background(), testLogCollection, "msg-1")
	require.NoError(t, err)
	list := doc["dlr"].([]any)
	require.Len(t, list, 2)
	assert.Equal(t, "ENROUTE", list[0].(map[string]any)["message_status"])
	assert.Equal(t, "DELIVRD", list[1].(map[string]any)["message_status"])
}

func TestHandle_DLRPrivacyRedactsText(t *testing.T) {
	r, st, _ := newTestRouter(true)

	require.NoError(t, r.Handle(context.Background(), dlrEvent("msg-1", map[string]any{
		models.HeaderText: "hello",
	})))

	entry := st.Appends[0].Item.(map[string]any)
	assert.Equal(t, "** 5 char content **", entry["text"])
}

func TestHandle_DLRPrivacyLeavesEmptyTextAlone(t *testing.T) {
	r, st, _ := newTestRouter(true)

	require.NoError(t, r.Handle(context.Background(), dlrEvent("msg-1", map[string]any{
		models.HeaderText: "",
	})))

	entry := st.Appends[0].Item.(map[string]any)
	assert.Equal(t, "", entry["text"])
}

func TestHandle_DLRStoreFailurePropagates(t *testing.T) {
	r, st, metrics := newTestRouter(false)
	st.AppendErr = errors.New("connection reset")

	err := r.Handle(context.Background(), dlrEvent("msg-1", nil))
	assert.Error(t, err)
	assert.Equal(t, int64(1), metrics.GetStoreErrors())
}
