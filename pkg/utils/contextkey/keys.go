package contextkey

// key is a private type to avoid context key collisions across packages.
type key string

const (
	TraceID   key = "trace_id"
	RequestID key = "request_id"
	TeamID    key = "team_id"
	// TeamToken holds the raw bearer token of the calling team so it can be forwarded to the platform API.
	TeamToken key = "team_token"
	AttemptID key = "attempt_id"
)
