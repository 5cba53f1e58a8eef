package protocol

// NoncePayload carries the nonce data used by each side of the exchange.
// RFC 7296 requires a nonce of 16-256 bytes; Decode rejects anything
// outside that range, though the generator (see crypto.NonceGen) picks
// a size tied to the negotiated PRF rather than relying on this check.
type NoncePayload struct {
	*PayloadHeader
	NonceData []byte
}

func (s *NoncePayload) Type() PayloadType { return PayloadTypeNonce }

func (s *NoncePayload) Encode() []byte {
	return append([]byte{}, s.NonceData...)
}

func (s *NoncePayload) Decode(b []byte) error {
	if len(b) < 16 || len(b) > 256 {
		return ERR_INVALID_SYNTAX
	}
	s.NonceData = append([]byte{}, b...)
	return nil
}
