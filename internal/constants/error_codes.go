package constants

const (
	// Shared REST/WS transport-agnostic errors
	ErrCodeAuthFailed      = "AUTH_FAILED"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeInternal        = "INTERNAL_ERROR"

	// Room/Peer signaling domain errors
	ErrCodeOutOfOrderCommand = "OUT_OF_ORDER_COMMAND"
	ErrCodeTopologyViolation = "TOPOLOGY_VIOLATION"
	ErrCodeTurnUnreachable   = "TURN_UNREACHABLE"
	ErrCodeTransportError    = "TRANSPORT_ERROR"
	ErrCodeTrafficAnomaly    = "TRAFFIC_ANOMALY"
)

const (
	// IDRandomBytes is the amount of random bytes used to build an opaque id.
	IDRandomBytes = 16
)
