package ikeinit

import (
	"net"

	"github.com/pkg/errors"
)

// RFC 5685 gateway identity types.
const (
	gwTypeIPv4 = 1
	gwTypeIPv6 = 2
	gwTypeFQDN = 3
)

// decodeRedirect parses a REDIRECT notify payload: a one-byte gateway
// identity type, a one-byte length, the gateway identity itself, and
// the echoed nonce data trailing it.
func decodeRedirect(data []byte) (gateway string, echoedNonce []byte, err error) {
	if len(data) < 2 {
		return "", nil, errors.Wrap(ErrInvalidRedirect, "short redirect notify")
	}
	gwType := data[0]
	gwLen := int(data[1])
	if len(data) < 2+gwLen {
		return "", nil, errors.Wrap(ErrInvalidRedirect, "truncated gateway identity")
	}
	gwData := data[2 : 2+gwLen]
	echoedNonce = append([]byte{}, data[2+gwLen:]...)

	switch gwType {
	case gwTypeIPv4, gwTypeIPv6:
		ip := net.IP(gwData)
		if ip == nil {
			return "", nil, errors.Wrap(ErrInvalidRedirect, "bad gateway address")
		}
		gateway = ip.String()
	case gwTypeFQDN:
		gateway = string(gwData)
	default:
		return "", nil, errors.Wrap(ErrInvalidRedirect, "unknown gateway identity type")
	}
	return gateway, echoedNonce, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
