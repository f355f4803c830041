// Package game holds the tic-tac-toe rules: symbols, the board and result
// evaluation. It knows nothing about rooms or connections.
package game

import "encoding/json"

// Symbol is a player's mark. The first player to enter a room plays X.
type Symbol string

const (
	Empty Symbol = ""
	X     Symbol = "X"
	O     Symbol = "O"
)

// Opponent returns the other mark. Empty has no opponent.
func (s Symbol) Opponent() Symbol {
	switch s {
	case X:
		return O
	case O:
		return X
	}
	return Empty
}

const Cells = 9

// Board is a 3x3 grid in row-major order.
type Board [Cells]Symbol

// ValidPosition reports whether pos addresses a cell.
func ValidPosition(pos int) bool {
	return pos >= 0 && pos < Cells
}

// Full reports whether every cell is taken.
func (b Board) Full() bool {
	for _, cell := range b {
		if cell == Empty {
			return false
		}
	}
	return true
}

// MarshalJSON renders empty cells as null.
func (b Board) MarshalJSON() ([]byte, error) {
	cells := make([]*Symbol, Cells)
	for i := range b {
		if b[i] != Empty {
			s := b[i]
			cells[i] = &s
		}
	}
	return json.Marshal(cells)
}

// UnmarshalJSON accepts the form produced by MarshalJSON.
func (b *Board) UnmarshalJSON(data []byte) error {
	var cells []*Symbol
	if err := json.Unmarshal(data, &cells); err != nil {
		return err
	}
	*b = Board{}
	for i := 0; i < len(cells) && i < Cells; i++ {
		if cells[i] != nil {
			b[i] = *cells[i]
		}
	}
	return nil
}
