package models

// Wire discriminants of inbound stream frames.
const (
	TypeMarketUpdate    = "MARKET_UPDATE"
	TypePortfolioUpdate = "PORTFOLIO_UPDATE"
	TypeCriticalError   = "MARKET_CRITICAL_ERROR"
	TypePong            = "PONG"
)

// Message is a decoded inbound frame. The set of implementations is closed:
// MarketUpdate, PortfolioUpdate, CriticalError, Pong and Unrecognized.
type Message interface {
	Type() string
	message()
}

// MarketUpdate carries the complete tracked-instrument set.
type MarketUpdate struct {
	Status  string   `json:"status,omitempty"`
	Source  string   `json:"source,omitempty"`
	Tickers []Ticker `json:"data"`
}

// PortfolioUpdate carries a full portfolio snapshot.
type PortfolioUpdate struct {
	Portfolio Portfolio `json:"data"`
}

// CriticalError is a server-reported feed failure. It does not close the
// transport.
type CriticalError struct {
	Message string `json:"error"`
}

// Pong acknowledges the heartbeat probe.
type Pong struct{}

// Unrecognized is any frame with a discriminant this build does not know.
type Unrecognized struct {
	Kind string `json:"type"`
}

func (MarketUpdate) Type() string    { return TypeMarketUpdate }
func (PortfolioUpdate) Type() string { return TypePortfolioUpdate }
func (CriticalError) Type() string   { return TypeCriticalError }
func (Pong) Type() string            { return TypePong }
func (u Unrecognized) Type() string  { return u.Kind }

func (MarketUpdate) message()    {}
func (PortfolioUpdate) message() {}
func (CriticalError) message()   {}
func (Pong) message()            {}
func (Unrecognized) message()    {}
