package smpp

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// EsmClass mirrors the esm_class octet of a submit PDU. Bit 0x40 marks a
// user-data header at the start of the message body.
type EsmClass uint8

const udhiIndicatorMask = 0x40

func (e EsmClass) UDHIIndicatorSet() bool {
	return e&udhiIndicatorMask != 0
}

// SplitMethod is how the sending gateway marked a multi-part message.
type SplitMethod int

const (
	SplitNone SplitMethod = iota
	SplitReferenceNumber
	SplitHeaderPrefixed
)

func (m SplitMethod) String() string {
	switch m {
	case SplitReferenceNumber:
		return "sar"
	case SplitHeaderPrefixed:
		return "udh"
	default:
		return "none"
	}
}

// The concatenation UDH starts with IE length 0x05, IE id 0x00 (8-bit
// reference) and IE data length 0x03; the whole header is 6 bytes.
var udhConcatSignature = []byte{0x05, 0x00, 0x03}

const udhLength = 6

// Params is the parameter map of one protocol fragment.
type Params struct {
	ShortMessage         []byte   `json:"short_message"`
	SarMsgRefNum         *int     `json:"sar_msg_ref_num,omitempty"`
	EsmClass             EsmClass `json:"esm_class"`
	DestinationAddr      string   `json:"destination_addr"`
	SourceAddr           string   `json:"source_addr"`
	DataCoding           *int     `json:"data_coding,omitempty"`
	ScheduleDeliveryTime string   `json:"schedule_delivery_time,omitempty"`
	ValidityPeriod       string   `json:"validity_period,omitempty"`
}

// Fragment is one link of a message's fragment chain.
type Fragment struct {
	Params Params    `json:"params"`
	Status string    `json:"status"`
	Next   *Fragment `json:"next,omitempty"`
}

// ErrEmptyChain is returned for an event whose body carries no fragment
// chain at all. It is fatal for that event only.
var ErrEmptyChain = errors.New("smpp: empty fragment chain")

// ParseChain decodes an event body into its fragment chain.
func ParseChain(body []byte) (*Fragment, error) {
	if len(body) == 0 {
		return nil, ErrEmptyChain
	}
	var first Fragment
	if err := json.Unmarshal(body, &first); err != nil {
		return nil, fmt.Errorf("smpp: decode fragment chain: %w", err)
	}
	return &first, nil
}

// DetectSplitMethod inspects the first fragment: a segment reference number
// means sar splitting, a set UDHI flag plus the concatenation header
// signature means udh splitting, anything else is a single-part message.
func DetectSplitMethod(first *Fragment) SplitMethod {
	if first.Params.SarMsgRefNum != nil {
		return SplitReferenceNumber
	}
	if first.Params.EsmClass.UDHIIndicatorSet() &&
		bytes.HasPrefix(first.Params.ShortMessage, udhConcatSignature) {
		return SplitHeaderPrefixed
	}
	return SplitNone
}

// Reassembled is the concatenated payload of one fragment chain.
type Reassembled struct {
	Raw       []byte
	Hex       string
	PageCount int
	Method    SplitMethod
}

// Reassemble concatenates a fragment chain into one payload. For udh
// splitting the 6-byte user-data header is stripped from every fragment; for
// sar splitting bodies are joined whole. A single-part message keeps its
// body untouched and a page count of 1, whatever the chain length.
func Reassemble(first *Fragment) (Reassembled, error) {
	if first == nil {
		return Reassembled{}, ErrEmptyChain
	}

	method := DetectSplitMethod(first)
	pages := 1

	var raw []byte
	if method == SplitNone {
		raw = first.Params.ShortMessage
	} else {
		raw = append(raw, stripHeader(first.Params.ShortMessage, method)...)
		for f := first.Next; f != nil; f = f.Next {
			raw = append(raw, stripHeader(f.Params.ShortMessage, method)...)
			pages++
		}
	}

	return Reassembled{
		Raw:       raw,
		Hex:       hex.EncodeToString(raw),
		PageCount: pages,
		Method:    method,
	}, nil
}

func stripHeader(body []byte, method SplitMethod) []byte {
	if method != SplitHeaderPrefixed {
		return body
	}
	if len(body) <= udhLength {
		return nil
	}
	return body[udhLength:]
}
