package ikeinit

import (
	"crypto/hmac"
	"crypto/sha256"

	"github.com/nullcipher/ikeinit/protocol"
)

// computeCookie derives the stateless RFC 7296 2.6 responder cookie
// from a local secret, the assigned initiator SPI, the request's
// nonce, and the request's source address, so ThrottleInitRequests
// never needs to keep per-attempt state: the same inputs always
// reproduce the same cookie.
func computeCookie(secret []byte, spiI protocol.Spi, nonce []byte, remoteAddr string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(spiI[:])
	mac.Write(nonce)
	mac.Write([]byte(remoteAddr))
	return mac.Sum(nil)
}
