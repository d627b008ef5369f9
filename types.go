package relay

// Mode selects how a redirect hands its code to the waiting client
type Mode string

const (
	// ModePush delivers the code over the client's open WebSocket
	ModePush Mode = "push"

	// ModePull stores the code until the client fetches it from /retrieval
	ModePull Mode = "pull"
)

// Valid reports whether m is a known mode
func (m Mode) Valid() bool {
	return m == ModePush || m == ModePull
}

// RedirectOutcome says what HandleRedirect did with a code
type RedirectOutcome string

const (
	OutcomeDelivered RedirectOutcome = "delivered"
	OutcomeStored    RedirectOutcome = "stored"
)

// Browser-facing success texts
const (
	MessageDelivered = "You may now close this tab"
	MessageStored    = "You may now close this tab, the application may take up to 5 seconds to refresh"
)

// CodeMessage is the text frame a waiting client receives in push mode
type CodeMessage struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// HealthResponse is served on /healthz
type HealthResponse struct {
	Status   string `json:"status"`
	Mode     Mode   `json:"mode"`
	Sessions int    `json:"sessions"`
	Results  int    `json:"results"`
}
