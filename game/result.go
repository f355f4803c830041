package game

// Outcome names the result of a finished round.
type Outcome string

const (
	OutcomeX    Outcome = "X"
	OutcomeO    Outcome = "O"
	OutcomeDraw Outcome = "draw"
)

// Result is attached to a room once a round ends. Line is nil for a draw.
type Result struct {
	Winner Outcome `json:"winner"`
	Line   []int   `json:"line"`
}

// IsDraw reports whether the round ended without a line.
func (r *Result) IsDraw() bool {
	return r != nil && r.Winner == OutcomeDraw
}

// Lines lists every winning combination in scan order: rows top to bottom,
// columns left to right, then the two diagonals.
var Lines = [8][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// Evaluate returns the result of the board, or nil while the round is still
// open. The first completed line in scan order wins.
func Evaluate(b Board) *Result {
	for _, line := range Lines {
		a, m, c := line[0], line[1], line[2]
		if b[a] != Empty && b[a] == b[m] && b[a] == b[c] {
			return &Result{
				Winner: Outcome(b[a]),
				Line:   []int{a, m, c},
			}
		}
	}

	if b.Full() {
		return &Result{Winner: OutcomeDraw}
	}
	return nil
}
