package protocol

import (
	"github.com/msgboxio/packets"
	"github.com/pkg/errors"
)

// TransformType enumerates RFC 7296 transform types plus the RFC 9370
// additional key exchange transform types 6-12 (ADDITIONAL_KEY_EXCHANGE_1
// through _7), which follow the same proposal substructure as any other
// transform and simply mean "one more key exchange to chain in".
type TransformType uint8

const (
	TRANSFORM_TYPE_ENCR  TransformType = 1
	TRANSFORM_TYPE_PRF   TransformType = 2
	TRANSFORM_TYPE_INTEG TransformType = 3
	// TRANSFORM_TYPE_DH is also known, post RFC 9370, as
	// KEY_EXCHANGE_METHOD: the method used for the primary exchange.
	TRANSFORM_TYPE_DH  TransformType = 4
	TRANSFORM_TYPE_ESN TransformType = 5

	TRANSFORM_TYPE_ADDITIONAL_KE1 TransformType = 6
	TRANSFORM_TYPE_ADDITIONAL_KE2 TransformType = 7
	TRANSFORM_TYPE_ADDITIONAL_KE3 TransformType = 8
	TRANSFORM_TYPE_ADDITIONAL_KE4 TransformType = 9
	TRANSFORM_TYPE_ADDITIONAL_KE5 TransformType = 10
	TRANSFORM_TYPE_ADDITIONAL_KE6 TransformType = 11
	TRANSFORM_TYPE_ADDITIONAL_KE7 TransformType = 12
)

// AdditionalKeyExchangeTypes lists the 7 additional-KE transform types in
// the numerical order RFC 9370 requires a plan to be built in.
var AdditionalKeyExchangeTypes = [7]TransformType{
	TRANSFORM_TYPE_ADDITIONAL_KE1,
	TRANSFORM_TYPE_ADDITIONAL_KE2,
	TRANSFORM_TYPE_ADDITIONAL_KE3,
	TRANSFORM_TYPE_ADDITIONAL_KE4,
	TRANSFORM_TYPE_ADDITIONAL_KE5,
	TRANSFORM_TYPE_ADDITIONAL_KE6,
	TRANSFORM_TYPE_ADDITIONAL_KE7,
}

// KeMethod identifies a key-exchange method: a classical DH group or a
// KEM, by the same 16-bit transform ID space RFC 7296 / RFC 9370 use.
type KeMethod uint16

const (
	KE_NONE    KeMethod = 0
	MODP_1024  KeMethod = 2
	MODP_2048  KeMethod = 14
	MODP_3072  KeMethod = 15
	MODP_4096  KeMethod = 16
	ECP_256    KeMethod = 19
	ECP_384    KeMethod = 20
	ECP_521    KeMethod = 21
	// ML_KEM_768 is assigned in the IANA "Transform Type 4 - Key Exchange
	// Method Transform IDs" registry for post-quantum hybridisation via
	// RFC 9370 additional key exchanges.
	ML_KEM_768 KeMethod = 41
)

func (m KeMethod) String() string {
	switch m {
	case KE_NONE:
		return "NONE"
	case MODP_1024:
		return "MODP_1024"
	case MODP_2048:
		return "MODP_2048"
	case MODP_3072:
		return "MODP_3072"
	case MODP_4096:
		return "MODP_4096"
	case ECP_256:
		return "ECP_256"
	case ECP_384:
		return "ECP_384"
	case ECP_521:
		return "ECP_521"
	case ML_KEM_768:
		return "ML_KEM_768"
	default:
		return "UNKNOWN_KE_METHOD"
	}
}

type EncrTransformId uint16

const (
	ENCR_AES_CBC      EncrTransformId = 12
	ENCR_CAMELLIA_CBC EncrTransformId = 23
)

type PrfTransformId uint16

const (
	PRF_HMAC_SHA1     PrfTransformId = 2
	PRF_HMAC_SHA2_256 PrfTransformId = 5
	PRF_HMAC_SHA2_384 PrfTransformId = 6
)

type AuthTransformId uint16

const (
	AUTH_HMAC_SHA1_96      AuthTransformId = 2
	AUTH_HMAC_SHA2_256_128 AuthTransformId = 12
	AUTH_HMAC_SHA2_384_192 AuthTransformId = 13
)

// Transform identifies a single transform: its type plus the 16-bit ID
// within that type's namespace.
type Transform struct {
	Type        TransformType
	TransformId uint16
	KeyLength   uint16 // bits, only meaningful for TRANSFORM_TYPE_ENCR
}

const (
	minLenTransform = 8
	minLenAttribute = 4
	minLenProposal  = 8

	attributeTypeKeyLength = 14
)

func decodeTransform(b []byte) (tr *Transform, isLast bool, used int, err error) {
	if len(b) < minLenTransform {
		return nil, false, 0, errors.Wrap(ERR_INVALID_SYNTAX, "transform too short")
	}
	last, _ := packets.ReadB8(b, 0)
	isLast = last == 0
	trLength, _ := packets.ReadB16(b, 2)
	if int(trLength) < minLenTransform || int(trLength) > len(b) {
		return nil, false, 0, errors.Wrap(ERR_INVALID_SYNTAX, "bad transform length")
	}
	trType, _ := packets.ReadB8(b, 4)
	trID, _ := packets.ReadB16(b, 6)
	tr = &Transform{Type: TransformType(trType), TransformId: trID}
	rest := b[minLenTransform:trLength]
	for len(rest) > 0 {
		if len(rest) < minLenAttribute {
			return nil, false, 0, errors.Wrap(ERR_INVALID_SYNTAX, "truncated attribute")
		}
		at, _ := packets.ReadB16(rest, 0)
		alen, _ := packets.ReadB16(rest, 2)
		if AttributeType(at&0x7fff) == attributeTypeKeyLengthType {
			tr.KeyLength = alen
		}
		rest = rest[minLenAttribute:]
	}
	used = int(trLength)
	return
}

type AttributeType uint16

const attributeTypeKeyLengthType AttributeType = attributeTypeKeyLength

func encodeTransform(tr *Transform, isLast bool) []byte {
	b := make([]byte, minLenTransform)
	if !isLast {
		packets.WriteB8(b, 0, 3)
	}
	packets.WriteB8(b, 4, uint8(tr.Type))
	packets.WriteB16(b, 6, tr.TransformId)
	if tr.KeyLength != 0 {
		attr := make([]byte, 4)
		packets.WriteB16(attr, 0, 0x8000|attributeTypeKeyLength)
		packets.WriteB16(attr, 2, tr.KeyLength)
		b = append(b, attr...)
	}
	packets.WriteB16(b, 2, uint16(len(b)))
	return b
}

// SaProposal is one proposal substructure: a protocol, an SPI, and its
// ordered list of transforms.
type SaProposal struct {
	Number     uint8
	ProtocolId ProtocolId
	Spi        []byte
	Transforms []*Transform
}

// TransformOfType returns the first transform of the given type, if any.
func (p *SaProposal) TransformOfType(t TransformType) *Transform {
	for _, tr := range p.Transforms {
		if tr.Type == t {
			return tr
		}
	}
	return nil
}

func decodeProposal(b []byte) (prop *SaProposal, isLast bool, used int, err error) {
	if len(b) < minLenProposal {
		return nil, false, 0, errors.Wrap(ERR_INVALID_SYNTAX, "proposal too short")
	}
	last, _ := packets.ReadB8(b, 0)
	isLast = last == 0
	propLength, _ := packets.ReadB16(b, 2)
	if int(propLength) < minLenProposal || int(propLength) > len(b) {
		return nil, false, 0, errors.Wrap(ERR_INVALID_SYNTAX, "bad proposal length")
	}
	prop = &SaProposal{}
	prop.Number, _ = packets.ReadB8(b, 4)
	pid, _ := packets.ReadB8(b, 5)
	prop.ProtocolId = ProtocolId(pid)
	spiSize, _ := packets.ReadB8(b, 6)
	numTransforms, _ := packets.ReadB8(b, 7)
	if minLenProposal+int(spiSize) > int(propLength) {
		return nil, false, 0, errors.Wrap(ERR_INVALID_SYNTAX, "bad proposal spi size")
	}
	prop.Spi = append([]byte{}, b[minLenProposal:minLenProposal+int(spiSize)]...)
	rest := b[minLenProposal+int(spiSize) : propLength]
	for len(rest) > 0 {
		tr, trLast, trUsed, trErr := decodeTransform(rest)
		if trErr != nil {
			return nil, false, 0, trErr
		}
		prop.Transforms = append(prop.Transforms, tr)
		rest = rest[trUsed:]
		if trLast {
			break
		}
	}
	if len(prop.Transforms) != int(numTransforms) {
		return nil, false, 0, errors.Wrap(ERR_INVALID_SYNTAX, "transform count mismatch")
	}
	used = int(propLength)
	return
}

func encodeProposal(prop *SaProposal, number int, isLast bool) []byte {
	b := make([]byte, minLenProposal)
	if !isLast {
		packets.WriteB8(b, 0, 2)
	}
	packets.WriteB8(b, 4, uint8(number))
	packets.WriteB8(b, 5, uint8(prop.ProtocolId))
	packets.WriteB8(b, 6, uint8(len(prop.Spi)))
	packets.WriteB8(b, 7, uint8(len(prop.Transforms)))
	b = append(b, prop.Spi...)
	for i, tr := range prop.Transforms {
		b = append(b, encodeTransform(tr, i == len(prop.Transforms)-1)...)
	}
	packets.WriteB16(b, 2, uint16(len(b)))
	return b
}

// SaPayload carries the list of proposals offered (initiator) or the
// single proposal selected (responder).
type SaPayload struct {
	*PayloadHeader
	Proposals []*SaProposal
}

func (s *SaPayload) Type() PayloadType { return PayloadTypeSA }

func (s *SaPayload) Encode() []byte {
	var b []byte
	for i, prop := range s.Proposals {
		b = append(b, encodeProposal(prop, i+1, i == len(s.Proposals)-1)...)
	}
	return b
}

func (s *SaPayload) Decode(b []byte) error {
	for len(b) > 0 {
		prop, isLast, used, err := decodeProposal(b)
		if err != nil {
			return err
		}
		s.Proposals = append(s.Proposals, prop)
		b = b[used:]
		if isLast {
			break
		}
	}
	return nil
}
