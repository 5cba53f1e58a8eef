package ikesa

import (
	"crypto/rand"

	"github.com/nullcipher/ikeinit/protocol"
)

// MakeSpi generates a fresh random 8-byte SPI for a new IKE_SA.
func MakeSpi() protocol.Spi {
	var spi protocol.Spi
	if _, err := rand.Read(spi[:]); err != nil {
		panic("ikesa: failed to read random SPI: " + err.Error())
	}
	return spi
}
