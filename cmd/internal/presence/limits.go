package presence

import "time"

// Security/performance limits.
const (
	// Max bytes per websocket frame read (hard limit). Clients only send small control envelopes.
	maxFrameBytes = 4 << 10 // 4 KiB

	// Max length of the client-supplied connection key.
	maxKeyChars = 128
)

const (
	// Heartbeat defaults (can be overridden by env in ws_gateway.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second
)
