package protocol

import "fmt"

// IkeErrorCode is a notify error type from RFC 7296 §3.10.1, usable both
// as the NOTIFICATION-MESSAGE-TYPE on the wire and as a Go error value.
type IkeErrorCode uint16

const (
	ERR_UNSUPPORTED_CRITICAL_PAYLOAD IkeErrorCode = 1
	ERR_INVALID_SYNTAX               IkeErrorCode = 7
	ERR_INVALID_KE_PAYLOAD           IkeErrorCode = 17
	ERR_NO_PROPOSAL_CHOSEN           IkeErrorCode = 14
	ERR_AUTHENTICATION_FAILED        IkeErrorCode = 24
	ERR_TEMPORARY_FAILURE            IkeErrorCode = 43
)

var errorCodeNames = map[IkeErrorCode]string{
	ERR_UNSUPPORTED_CRITICAL_PAYLOAD: "UNSUPPORTED_CRITICAL_PAYLOAD",
	ERR_INVALID_SYNTAX:               "INVALID_SYNTAX",
	ERR_INVALID_KE_PAYLOAD:           "INVALID_KE_PAYLOAD",
	ERR_NO_PROPOSAL_CHOSEN:           "NO_PROPOSAL_CHOSEN",
	ERR_AUTHENTICATION_FAILED:        "AUTHENTICATION_FAILED",
	ERR_TEMPORARY_FAILURE:            "TEMPORARY_FAILURE",
}

func (e IkeErrorCode) Error() string {
	if name, ok := errorCodeNames[e]; ok {
		return name
	}
	return fmt.Sprintf("IKE_ERROR(%d)", uint16(e))
}

// GetIkeErrorCode maps a notify type to its error code, if the notify
// type is itself an error (type <= 16383 per RFC 7296).
func GetIkeErrorCode(nt NotificationType) (IkeErrorCode, bool) {
	switch nt {
	case UNSUPPORTED_CRITICAL_PAYLOAD:
		return ERR_UNSUPPORTED_CRITICAL_PAYLOAD, true
	case INVALID_SYNTAX:
		return ERR_INVALID_SYNTAX, true
	case INVALID_KE_PAYLOAD:
		return ERR_INVALID_KE_PAYLOAD, true
	case NO_PROPOSAL_CHOSEN:
		return ERR_NO_PROPOSAL_CHOSEN, true
	case AUTHENTICATION_FAILED:
		return ERR_AUTHENTICATION_FAILED, true
	case TEMPORARY_FAILURE:
		return ERR_TEMPORARY_FAILURE, true
	default:
		return 0, false
	}
}

// IsErrorNotify reports whether nt is in the error-notify range.
func IsErrorNotify(nt NotificationType) bool {
	return nt <= 16383
}
