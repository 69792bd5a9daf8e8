package bet

// Coin is a stake amount preset. The UI cycles through presets rather
// than accepting free-form amounts.
type Coin uint64

const (
	Coin1   Coin = 1
	Coin5   Coin = 5
	Coin10  Coin = 10
	Coin20  Coin = 20
	Coin50  Coin = 50
	Coin100 Coin = 100
	Coin200 Coin = 200
)

// DefaultCoinLoggedIn and DefaultCoinLoggedOut are the starting presets;
// anonymous sessions start at the smallest stake.
const (
	DefaultCoinLoggedIn  = Coin10
	DefaultCoinLoggedOut = Coin1
)

var coinOrder = []Coin{Coin1, Coin5, Coin10, Coin20, Coin50, Coin100, Coin200}

// Next cycles to the following preset, wrapping at the top.
func (c Coin) Next() Coin {
	for i, v := range coinOrder {
		if v == c {
			return coinOrder[(i+1)%len(coinOrder)]
		}
	}
	return coinOrder[0]
}

// Prev cycles to the preceding preset, wrapping at the bottom.
func (c Coin) Prev() Coin {
	for i, v := range coinOrder {
		if v == c {
			return coinOrder[(i+len(coinOrder)-1)%len(coinOrder)]
		}
	}
	return coinOrder[0]
}

// Amount returns the stake value in sats.
func (c Coin) Amount() uint64 { return uint64(c) }
