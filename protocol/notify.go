package protocol

import "github.com/msgboxio/packets"

// NotificationType is the 16-bit NOTIFY-MESSAGE-TYPE field.
type NotificationType uint16

const (
	// Error types, <= 16383.
	UNSUPPORTED_CRITICAL_PAYLOAD NotificationType = 1
	INVALID_SYNTAX               NotificationType = 7
	NO_PROPOSAL_CHOSEN           NotificationType = 14
	INVALID_KE_PAYLOAD           NotificationType = 17
	AUTHENTICATION_FAILED        NotificationType = 24
	TEMPORARY_FAILURE            NotificationType = 43

	// Status types, >= 16384.
	NAT_DETECTION_SOURCE_IP      NotificationType = 16388
	NAT_DETECTION_DESTINATION_IP NotificationType = 16389
	COOKIE                       NotificationType = 16390
	REDIRECT_SUPPORTED           NotificationType = 16406
	REDIRECT                     NotificationType = 16407
	REDIRECTED_FROM              NotificationType = 16409
	SIGNATURE_HASH_ALGORITHMS    NotificationType = 16431
	CHILDLESS_IKEV2_SUPPORTED    NotificationType = 16423
	// FRAGMENTATION_SUPPORTED is strongSwan's private-use extension
	// notify, carried forward here for parity with the teacher.
	FRAGMENTATION_SUPPORTED NotificationType = 16430
	USE_PPK                 NotificationType = 16435
)

// NotifyPayload carries a single NOTIFY-MESSAGE.
type NotifyPayload struct {
	*PayloadHeader
	ProtocolId       ProtocolId
	NotificationType NotificationType
	Spi              []byte
	Data             []byte
}

func (s *NotifyPayload) Type() PayloadType { return PayloadTypeN }

func (s *NotifyPayload) Encode() []byte {
	b := []byte{uint8(s.ProtocolId), uint8(len(s.Spi)), 0, 0}
	packets.WriteB16(b, 2, uint16(s.NotificationType))
	b = append(b, s.Spi...)
	return append(b, s.Data...)
}

func (s *NotifyPayload) Decode(b []byte) error {
	if len(b) < 4 {
		return ERR_INVALID_SYNTAX
	}
	pid, _ := packets.ReadB8(b, 0)
	s.ProtocolId = ProtocolId(pid)
	spiLen, _ := packets.ReadB8(b, 1)
	if len(b) < 4+int(spiLen) {
		return ERR_INVALID_SYNTAX
	}
	nt, _ := packets.ReadB16(b, 2)
	s.NotificationType = NotificationType(nt)
	s.Spi = append([]byte{}, b[4:4+int(spiLen)]...)
	s.Data = append([]byte{}, b[4+int(spiLen):]...)
	return nil
}

// ReadUint16 reads a big-endian 16-bit value from notify data at offset,
// as used by INVALID_KE_PAYLOAD and SIGNATURE_HASH_ALGORITHMS.
func ReadUint16(b []byte, offset int) (uint16, error) {
	v, err := packets.ReadB16(b, offset)
	if err != nil {
		return 0, ERR_INVALID_SYNTAX
	}
	return v, nil
}

// WriteUint16 big-endian encodes v, for building notify payload data.
func WriteUint16(v uint16) []byte {
	b := make([]byte, 2)
	packets.WriteB16(b, 0, v)
	return b
}
