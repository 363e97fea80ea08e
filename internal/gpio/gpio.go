package gpio

// Direction is the role of a pin.
type Direction int

const (
	// Output pins are driven by tickerbox.
	Output Direction = iota
	// Input pins are sampled. Nothing in tickerbox reads pins today.
	Input
)

// String returns "output" or "input".
func (d Direction) String() string {
	if d == Input {
		return "input"
	}
	return "output"
}

// Bank configures and drives named pins.
//
// Implementations must be safe for concurrent use: the display and the
// indicator are driven from different goroutines.
type Bank interface {
	// Setup configures name with dir. Outputs start low.
	Setup(name string, dir Direction) error
	// Write drives an output pin high (true) or low (false).
	Write(name string, high bool) error
}

// Line is a single output pin, such as the alert indicator.
type Line struct {
	Bank Bank
	Name string
}

// NewLine configures name as an output on bank.
func NewLine(bank Bank, name string) (*Line, error) {
	if err := bank.Setup(name, Output); err != nil {
		return nil, err
	}
	return &Line{Bank: bank, Name: name}, nil
}

// Set drives the line high when on is true, low otherwise.
func (l *Line) Set(on bool) error {
	return l.Bank.Write(l.Name, on)
}
