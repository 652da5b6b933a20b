package domain

// Order is a single price level. A zero quantity marks a removed level and
// never reaches a derived top-of-book view.
type Order struct {
	Price    float64
	Quantity float64
}

// DepthUpdate is one batch of book changes covering update ids in the range
// [FirstUpdateID, FinalUpdateID]. Ordering between updates is defined by
// these ids, not by arrival time.
type DepthUpdate struct {
	FirstUpdateID int64
	FinalUpdateID int64
	Bids          []Order
	Asks          []Order
}

// DepthSnapshot marks the book as fully known as of LastUpdateID.
type DepthSnapshot struct {
	LastUpdateID int64
}

// Trade is one aggregated trade event. Price and quantity are carried as
// provider strings; parsing happens at classification time.
type Trade struct {
	Time     int64
	Price    string
	Quantity string
}

// OrderBookRecord pairs the Nth best bid with the Nth best ask. Either side
// may be nil when depth is insufficient.
type OrderBookRecord struct {
	Bid *Order
	Ask *Order
}

type PriceDirection int

const (
	PriceIncrease PriceDirection = iota
	PriceDecrease
)

// HistoryRecord is one displayed trade. ID is a generated token: two
// records with identical fields are still distinct entries.
type HistoryRecord struct {
	ID        string
	Time      string
	Price     string
	Quantity  string
	Direction PriceDirection
}
