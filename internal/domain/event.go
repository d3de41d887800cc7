package domain

// EventKind discriminates decoded domain events. The set is closed: decoders
// dispatch over these kinds plus EventUnrecognized, so a new on-chain event
// is a compile-time addition here, never a silent fallthrough.
type EventKind int

const (
	EventUnrecognized EventKind = iota
	EventTradeFilled
	EventMarketCreated
	EventMarketResolved
)

// String returns the event kind name for logging.
func (k EventKind) String() string {
	switch k {
	case EventTradeFilled:
		return "trade_filled"
	case EventMarketCreated:
		return "market_created"
	case EventMarketResolved:
		return "market_resolved"
	default:
		return "unrecognized"
	}
}

// MarketResolution carries the outcome of a ConditionResolution event.
type MarketResolution struct {
	ConditionID    string
	Oracle         string
	QuestionID     string
	WinningOutcome int
	Block          uint64
	LogIndex       uint
}

// Event is a decoded on-chain event, tagged by Kind. Exactly one of the
// payload pointers is set for a recognized kind.
type Event struct {
	Kind       EventKind
	Block      uint64
	LogIndex   uint
	Trade      *Trade
	Market     *Market
	Resolution *MarketResolution
}
