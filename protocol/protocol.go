// Package protocol implements the wire-level types used by the IKE_INIT
// task: the message envelope and the SA, KE, NONCE and NOTIFY payloads
// defined by RFC 7296, plus the RFC 9370 additions needed for multiple
// key exchanges.
package protocol

import (
	"github.com/msgboxio/packets"
	"github.com/pkg/errors"
)

const (
	IKEV2_MAJOR_VERSION = 2
	IKEV2_MINOR_VERSION = 0

	IKE_HEADER_LEN        = 28
	PAYLOAD_HEADER_LENGTH = 4
)

// Spi is the 8-byte Security Parameter Index identifying one half of an
// IKE_SA.
type Spi [8]byte

func (s Spi) IsZero() bool {
	var zero Spi
	return s == zero
}

type IkeExchangeType uint16

const (
	// 0-33 Reserved [RFC7296]
	IKE_SA_INIT     IkeExchangeType = 34
	IKE_AUTH        IkeExchangeType = 35
	CREATE_CHILD_SA IkeExchangeType = 36
	INFORMATIONAL   IkeExchangeType = 37
	// IKE_INTERMEDIATE carries additional key exchanges during initial
	// establishment. [RFC9242]
	IKE_INTERMEDIATE IkeExchangeType = 43
	// IKE_FOLLOWUP_KE carries additional key exchanges during rekey. [RFC9370]
	IKE_FOLLOWUP_KE IkeExchangeType = 44
)

type PayloadType uint8

const (
	PayloadTypeNone    PayloadType = 0
	PayloadTypeSA      PayloadType = 33
	PayloadTypeKE      PayloadType = 34
	PayloadTypeIDi     PayloadType = 35
	PayloadTypeIDr     PayloadType = 36
	PayloadTypeCERT    PayloadType = 37
	PayloadTypeCERTREQ PayloadType = 38
	PayloadTypeAUTH    PayloadType = 39
	PayloadTypeNonce   PayloadType = 40
	PayloadTypeN       PayloadType = 41
	PayloadTypeD       PayloadType = 42
	PayloadTypeV       PayloadType = 43
	PayloadTypeTSi     PayloadType = 44
	PayloadTypeTSr     PayloadType = 45
	PayloadTypeSK      PayloadType = 46
)

type IkeFlags uint8

const (
	RESPONSE  IkeFlags = 1 << 5
	VERSION   IkeFlags = 1 << 4
	INITIATOR IkeFlags = 1 << 3
)

func (f IkeFlags) IsResponse() bool  { return f&RESPONSE != 0 }
func (f IkeFlags) IsInitiator() bool { return f&INITIATOR != 0 }

type ProtocolId uint8

const (
	IKE ProtocolId = 1
	AH  ProtocolId = 2
	ESP ProtocolId = 3
)

func (p ProtocolId) String() string {
	switch p {
	case IKE:
		return "IKE"
	case AH:
		return "AH"
	case ESP:
		return "ESP"
	default:
		return "UNKNOWN"
	}
}

// IkeHeader is the fixed 28-byte IKEv2 message header.
type IkeHeader struct {
	SpiI, SpiR                 Spi
	NextPayload                PayloadType
	MajorVersion, MinorVersion uint8
	ExchangeType               IkeExchangeType
	Flags                      IkeFlags
	MsgId                      uint32
	MsgLength                  uint32
}

func DecodeIkeHeader(b []byte) (*IkeHeader, error) {
	if len(b) < IKE_HEADER_LEN {
		return nil, errors.Wrapf(ERR_INVALID_SYNTAX, "header too short: %d", len(b))
	}
	h := &IkeHeader{}
	copy(h.SpiI[:], b)
	copy(h.SpiR[:], b[8:])
	pt, _ := packets.ReadB8(b, 16)
	h.NextPayload = PayloadType(pt)
	ver, _ := packets.ReadB8(b, 17)
	h.MajorVersion = ver >> 4
	h.MinorVersion = ver & 0x0f
	et, _ := packets.ReadB8(b, 18)
	h.ExchangeType = IkeExchangeType(et)
	flags, _ := packets.ReadB8(b, 19)
	h.Flags = IkeFlags(flags)
	h.MsgId, _ = packets.ReadB32(b, 20)
	h.MsgLength, _ = packets.ReadB32(b, 24)
	if h.MsgLength < IKE_HEADER_LEN {
		return nil, errors.Wrap(ERR_INVALID_SYNTAX, "message length too small")
	}
	return h, nil
}

func (h *IkeHeader) Encode() []byte {
	b := make([]byte, IKE_HEADER_LEN)
	copy(b, h.SpiI[:])
	copy(b[8:], h.SpiR[:])
	packets.WriteB8(b, 16, uint8(h.NextPayload))
	packets.WriteB8(b, 17, h.MajorVersion<<4|h.MinorVersion)
	packets.WriteB8(b, 18, uint8(h.ExchangeType))
	packets.WriteB8(b, 19, uint8(h.Flags))
	packets.WriteB32(b, 20, h.MsgId)
	packets.WriteB32(b, 24, h.MsgLength)
	return b
}

// PayloadHeader is the common 4-byte generic payload header.
type PayloadHeader struct {
	NextPayload   PayloadType
	IsCritical    bool
	PayloadLength uint16
}

func (h *PayloadHeader) NextPayloadType() PayloadType { return h.NextPayload }

func encodePayloadHeader(pt PayloadType, bodyLen uint16) []byte {
	b := make([]byte, PAYLOAD_HEADER_LENGTH)
	packets.WriteB8(b, 0, uint8(pt))
	packets.WriteB16(b, 2, bodyLen+PAYLOAD_HEADER_LENGTH)
	return b
}

func (h *PayloadHeader) Decode(b []byte) error {
	if len(b) < PAYLOAD_HEADER_LENGTH {
		return errors.Wrapf(ERR_INVALID_SYNTAX, "payload header too short: %d", len(b))
	}
	pt, _ := packets.ReadB8(b, 0)
	h.NextPayload = PayloadType(pt)
	if c, _ := packets.ReadB8(b, 1); c&0x80 != 0 {
		h.IsCritical = true
	}
	h.PayloadLength, _ = packets.ReadB16(b, 2)
	return nil
}

// Payload is implemented by every payload type the codec knows about.
type Payload interface {
	Type() PayloadType
	Decode([]byte) error
	Encode() []byte
	NextPayloadType() PayloadType
}

// Payloads is an ordered, type-indexed collection of payloads, in the
// order they should be (or were) marshalled on the wire.
type Payloads struct {
	index map[PayloadType]int
	list  []Payload
}

func MakePayloads() *Payloads {
	return &Payloads{index: make(map[PayloadType]int)}
}

func (p *Payloads) Get(t PayloadType) Payload {
	if idx, ok := p.index[t]; ok {
		return p.list[idx]
	}
	return nil
}

func (p *Payloads) GetAll(t PayloadType) []Payload {
	var out []Payload
	for _, pl := range p.list {
		if pl.Type() == t {
			out = append(out, pl)
		}
	}
	return out
}

// Add appends pl to the collection. A message carries at most one SA,
// KE or NONCE payload, so for those types a later Add of the same type
// replaces the earlier one in place (matching Get's single-value
// contract); NOTIFY payloads are repeated freely and always appended,
// left to GetAll/GetNotify to enumerate.
func (p *Payloads) Add(pl Payload) {
	if pl.Type() != PayloadTypeN {
		if idx, ok := p.index[pl.Type()]; ok {
			p.list[idx] = pl
			return
		}
	}
	p.list = append(p.list, pl)
	p.index[pl.Type()] = len(p.list) - 1
}

func (p *Payloads) All() []Payload { return p.list }

func encodePayloads(payloads *Payloads) []byte {
	var b []byte
	for i, pl := range payloads.list {
		next := PayloadTypeNone
		if i+1 < len(payloads.list) {
			next = payloads.list[i+1].Type()
		}
		body := pl.Encode()
		b = append(b, encodePayloadHeader(next, uint16(len(body)))...)
		b = append(b, body...)
	}
	return b
}

// Message is a decoded (or to-be-encoded) IKEv2 message. Only the payload
// types relevant to IKE_INIT are decoded by this package; unrecognised
// payload types are skipped by DecodePayloads rather than rejected, since
// their processing is out of this task's scope.
type Message struct {
	IkeHeader *IkeHeader
	Payloads  *Payloads

	// Source and Destination are the transport addresses this message
	// arrived from or will be sent to; the task itself never dials or
	// listens, it only stamps and reads these the way a teacher Message
	// carries its From/To for the transport layer to act on.
	Source, Destination string
}

func NewMessage(exch IkeExchangeType, spiI, spiR Spi, isResponse bool) *Message {
	flags := IkeFlags(0)
	if isResponse {
		flags = RESPONSE
	}
	return &Message{
		IkeHeader: &IkeHeader{
			SpiI:         spiI,
			SpiR:         spiR,
			MajorVersion: IKEV2_MAJOR_VERSION,
			MinorVersion: IKEV2_MINOR_VERSION,
			ExchangeType: exch,
			Flags:        flags,
		},
		Payloads: MakePayloads(),
	}
}

func (m *Message) SetExchangeType(e IkeExchangeType) { m.IkeHeader.ExchangeType = e }
func (m *Message) GetExchangeType() IkeExchangeType  { return m.IkeHeader.ExchangeType }

func (m *Message) GetSource() string      { return m.Source }
func (m *Message) GetDestination() string { return m.Destination }

func (m *Message) AddPayload(p Payload) { m.Payloads.Add(p) }

func (m *Message) GetPayload(t PayloadType) Payload { return m.Payloads.Get(t) }

// GetNotify returns the first NOTIFY payload of the given type, if present.
func (m *Message) GetNotify(nt NotificationType) *NotifyPayload {
	for _, p := range m.Payloads.GetAll(PayloadTypeN) {
		if np, ok := p.(*NotifyPayload); ok && np.NotificationType == nt {
			return np
		}
	}
	return nil
}

// AddNotify appends a NOTIFY payload of the given type and data.
func (m *Message) AddNotify(critical bool, nt NotificationType, data []byte) {
	m.Payloads.Add(&NotifyPayload{
		PayloadHeader:    &PayloadHeader{IsCritical: critical},
		ProtocolId:       IKE,
		NotificationType: nt,
		Data:             data,
	})
}

// Encode serialises the header and every added payload, in insertion
// order, chaining NextPayload fields correctly.
func (m *Message) Encode() ([]byte, error) {
	body := encodePayloads(m.Payloads)
	if len(m.Payloads.list) > 0 {
		m.IkeHeader.NextPayload = m.Payloads.list[0].Type()
	} else {
		m.IkeHeader.NextPayload = PayloadTypeNone
	}
	m.IkeHeader.MsgLength = uint32(len(body) + IKE_HEADER_LEN)
	return append(m.IkeHeader.Encode(), body...), nil
}

// DecodePayloads parses every known payload out of the message body,
// starting from the header's NextPayload. Unknown payload types other
// than the ones IKE_INIT cares about are skipped: their bytes are still
// consumed (so the chain can be followed) but not retained.
func (m *Message) DecodePayloads(raw []byte) error {
	m.Payloads = MakePayloads()
	if uint32(len(raw)) < m.IkeHeader.MsgLength {
		return errors.Wrap(ERR_INVALID_SYNTAX, "truncated message")
	}
	next := m.IkeHeader.NextPayload
	b := raw[IKE_HEADER_LEN:m.IkeHeader.MsgLength]
	for next != PayloadTypeNone {
		if len(b) < PAYLOAD_HEADER_LENGTH {
			return errors.Wrap(ERR_INVALID_SYNTAX, "truncated payload header")
		}
		hdr := &PayloadHeader{}
		if err := hdr.Decode(b[:PAYLOAD_HEADER_LENGTH]); err != nil {
			return err
		}
		if int(hdr.PayloadLength) > len(b) || hdr.PayloadLength < PAYLOAD_HEADER_LENGTH {
			return errors.Wrap(ERR_INVALID_SYNTAX, "bad payload length")
		}
		body := b[PAYLOAD_HEADER_LENGTH:hdr.PayloadLength]
		var payload Payload
		switch next {
		case PayloadTypeSA:
			payload = &SaPayload{PayloadHeader: hdr}
		case PayloadTypeKE:
			payload = &KePayload{PayloadHeader: hdr}
		case PayloadTypeNonce:
			payload = &NoncePayload{PayloadHeader: hdr}
		case PayloadTypeN:
			payload = &NotifyPayload{PayloadHeader: hdr}
		default:
			// skip payload types not relevant to the IKE_INIT task
			payload = &opaquePayload{PayloadHeader: hdr, payloadType: next, raw: append([]byte{}, body...)}
		}
		if err := payload.Decode(body); err != nil {
			return err
		}
		m.Payloads.Add(payload)
		next = hdr.NextPayload
		b = b[hdr.PayloadLength:]
	}
	return nil
}

// opaquePayload preserves unrecognised payload bytes so re-encoding a
// decoded message does not lose data; IKE_INIT never inspects it.
type opaquePayload struct {
	*PayloadHeader
	payloadType PayloadType
	raw         []byte
}

func (o *opaquePayload) Type() PayloadType { return o.payloadType }
func (o *opaquePayload) Encode() []byte    { return o.raw }
func (o *opaquePayload) Decode(b []byte) error {
	o.raw = append([]byte{}, b...)
	return nil
}
