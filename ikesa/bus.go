package ikesa

import "github.com/nullcipher/ikeinit/crypto"

// KeysEvent is published once per IKE_INIT task, when it derives the
// IKE_SA keys after the last planned key exchange (the primary one, or
// the final RFC 9370 additional one); the task always sets IsFinal.
type KeysEvent struct {
	Keymat  *crypto.Keymat
	IsFinal bool // true once no further key exchanges remain
}

// AlertEvent is published when the task hits a condition its caller
// needs to react to: a fatal protocol error, or a notification that
// should end the exchange (REDIRECT, for instance).
type AlertEvent struct {
	Err      error
	Redirect string
}

// Bus is the task's only channel to its caller, the same role
// Session.incoming/outgoing play for message delivery in the teacher,
// narrowed here to the two event kinds IKE_INIT needs to emit.
type Bus struct {
	keys   chan *KeysEvent
	alerts chan *AlertEvent
}

func NewBus() *Bus {
	return &Bus{
		keys:   make(chan *KeysEvent, 4),
		alerts: make(chan *AlertEvent, 4),
	}
}

func (b *Bus) PublishKeys(e *KeysEvent)   { b.keys <- e }
func (b *Bus) PublishAlert(e *AlertEvent) { b.alerts <- e }

func (b *Bus) Keys() <-chan *KeysEvent     { return b.keys }
func (b *Bus) Alerts() <-chan *AlertEvent  { return b.alerts }
