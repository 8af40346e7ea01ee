package osc

import "strings"

// Message is an OSC message: an address and its ordered arguments.
// Messages are not modified after construction; NewMessage copies its input.
type Message struct {
	Address   string
	Arguments []Value
}

// NewMessage builds a Message from an address and arguments.
func NewMessage(address string, args ...Value) Message {
	cp := make([]Value, len(args))
	copy(cp, args)
	return Message{Address: address, Arguments: cp}
}

// Equal reports whether m and o have the same address and argument sequence.
func (m Message) Equal(o Message) bool {
	if m.Address != o.Address || len(m.Arguments) != len(o.Arguments) {
		return false
	}
	for i := range m.Arguments {
		if !m.Arguments[i].Equal(o.Arguments[i]) {
			return false
		}
	}
	return true
}

func (m Message) String() string {
	var sb strings.Builder
	sb.WriteString(m.Address)
	for _, arg := range m.Arguments {
		sb.WriteByte(' ')
		sb.WriteString(arg.String())
	}
	return sb.String()
}
