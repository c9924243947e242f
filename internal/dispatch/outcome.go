package dispatch

// Outcome classifies one delivery attempt.
//
// Call sites branch on this instead of inspecting transport status codes.
type Outcome int

const (
	// Delivered: the push service accepted the message.
	Delivered Outcome = iota
	// Retryable: transient transport failure. No retry is scheduled for the
	// occurrence itself; the next periodic trigger is the retry mechanism.
	Retryable
	// Gone: the push service reports the endpoint permanently gone
	// (404/410 class). The owning record must be pruned by the caller.
	Gone
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Retryable:
		return "retryable"
	case Gone:
		return "gone"
	default:
		return "unknown"
	}
}
