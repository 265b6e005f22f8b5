package twin

import "strings"

// Command is a mode switch recognised in user input.
type Command int

const (
	CommandNone Command = iota
	CommandEnableKryten
	CommandDisableKryten
)

func (c Command) String() string {
	switch c {
	case CommandEnableKryten:
		return "enable_kryten"
	case CommandDisableKryten:
		return "disable_kryten"
	}
	return "none"
}

// ParseCommand looks for a mode phrase anywhere in input. Enable wins when
// both phrases appear.
func ParseCommand(input string) Command {
	lower := strings.ToLower(input)
	switch {
	case strings.Contains(lower, "enable kryten mode"):
		return CommandEnableKryten
	case strings.Contains(lower, "disable kryten mode"):
		return CommandDisableKryten
	}
	return CommandNone
}

// apply returns the mode flag after c.
func (c Command) apply(mode bool) bool {
	switch c {
	case CommandEnableKryten:
		return true
	case CommandDisableKryten:
		return false
	}
	return mode
}
