package protocol

import "github.com/msgboxio/packets"

// KePayload carries one side's public value for a single key exchange,
// tagged with the method it was generated for.
type KePayload struct {
	*PayloadHeader
	Method  KeMethod
	KeyData []byte
}

func (s *KePayload) Type() PayloadType { return PayloadTypeKE }

func (s *KePayload) Encode() []byte {
	b := make([]byte, 4)
	packets.WriteB16(b, 0, uint16(s.Method))
	return append(b, s.KeyData...)
}

func (s *KePayload) Decode(b []byte) error {
	if len(b) < 4 {
		return ERR_INVALID_SYNTAX
	}
	method, _ := packets.ReadB16(b, 0)
	s.Method = KeMethod(method)
	s.KeyData = append([]byte{}, b[4:]...)
	return nil
}
