package payments

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusDeclined Status = "DECLINED"
)

// PENDING is the only state with outgoing edges.
var validNext = map[Status]map[Status]bool{
	StatusPending:  {StatusApproved: true, StatusDeclined: true},
	StatusApproved: {},
	StatusDeclined: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusDeclined
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Provider-side transaction statuses.
const (
	RemoteApproved = "APPROVED"
	RemoteDeclined = "DECLINED"
	RemoteVoided   = "VOIDED"
	RemoteError    = "ERROR"
	RemotePending  = "PENDING"
)

// StatusFromCharge maps the immediate answer of a charge call. Anything that is
// not an approval closes the transaction as declined.
func StatusFromCharge(remote string) Status {
	if remote == RemoteApproved {
		return StatusApproved
	}
	return StatusDeclined
}

// StatusFromEvent maps an asynchronous provider status. ok is false when the
// provider still reports the transaction as in flight.
func StatusFromEvent(remote string) (s Status, ok bool) {
	switch remote {
	case RemoteApproved:
		return StatusApproved, true
	case RemoteDeclined, RemoteVoided, RemoteError:
		return StatusDeclined, true
	default:
		return "", false
	}
}
