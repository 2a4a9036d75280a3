package enums

// StreamState is the lifecycle state of the notification feed.
type StreamState string

const (
	StreamStateIdle            StreamState = "idle"
	StreamStateLoading         StreamState = "loading"
	StreamStateReady           StreamState = "ready"
	StreamStateUnauthenticated StreamState = "unauthenticated"
	StreamStateLoadFailed      StreamState = "load_failed"
)

func (s StreamState) String() string {
	return string(s)
}
