package dnssd

// ControlEvent is a control request delivered by the host service manager
type ControlEvent int

const (
	// ControlOther is any request the service does not implement
	ControlOther ControlEvent = iota
	// ControlInterrogate asks the service to report its current status
	ControlInterrogate
	// ControlStop asks the service to stop
	ControlStop
)

// ControlEvent string constants
const (
	controlOtherStr       = "other"
	controlInterrogateStr = "interrogate"
	controlStopStr        = "stop"
)

// String returns the string representation of a ControlEvent
func (e ControlEvent) String() string {
	switch e {
	case ControlInterrogate:
		return controlInterrogateStr
	case ControlStop:
		return controlStopStr
	default:
		return controlOtherStr
	}
}

// HandlerResult is the acknowledgment returned to the host for a control request
type HandlerResult int

const (
	// Handled acknowledges the request
	Handled HandlerResult = iota
	// NotImplemented tells the host the request is not supported
	NotImplemented
)

// String returns the string representation of a HandlerResult
func (r HandlerResult) String() string {
	if r == Handled {
		return "handled"
	}
	return "not-implemented"
}

// ControlHandler is invoked by a Host for every control request, on a
// goroutine the host owns. It must return promptly.
type ControlHandler func(ControlEvent) HandlerResult

// Bridge turns host control callbacks into a single-consumer event queue.
// Handle is safe for concurrent use; Events has exactly one reader, the
// Supervisor.
type Bridge struct {
	events chan ControlEvent
}

// NewBridge creates a Bridge whose queue holds up to buffer events
func NewBridge(buffer int) *Bridge {
	if buffer < 1 {
		buffer = 1
	}
	return &Bridge{events: make(chan ControlEvent, buffer)}
}

// Handle classifies ev and acknowledges it without blocking. Only stops are
// queued. When the queue is full a stop is already waiting, so the extra
// request is dropped.
func (b *Bridge) Handle(ev ControlEvent) HandlerResult {
	switch ev {
	case ControlInterrogate:
		return Handled
	case ControlStop:
		select {
		case b.events <- ev:
		default:
		}
		return Handled
	default:
		return NotImplemented
	}
}

// Events returns the queue consumed by the Supervisor
func (b *Bridge) Events() <-chan ControlEvent {
	return b.events
}
