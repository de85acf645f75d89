// Package command implements the line-oriented remote control protocol:
//
//	move <turn> <speed>\n
//
// where turn and speed are signed 8-bit decimal integers.
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Command struct {
	Turn  int8
	Speed int8
}

func (c Command) String() string {
	return fmt.Sprintf("move %d %d", c.Turn, c.Speed)
}

// Parse decodes one line. The command name is case-insensitive and
// surrounding whitespace, including a trailing "\r", is ignored.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty line", ErrUnknownCommand)
	}
	if !strings.EqualFold(fields[0], "move") {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, fields[0])
	}
	if len(fields) != 3 {
		return Command{}, fmt.Errorf("%w: move takes <turn> <speed>, got %d args", ErrBadArgs, len(fields)-1)
	}

	turn, err := parseInt8("turn", fields[1])
	if err != nil {
		return Command{}, err
	}
	speed, err := parseInt8("speed", fields[2])
	if err != nil {
		return Command{}, err
	}
	return Command{Turn: turn, Speed: speed}, nil
}

func parseInt8(name, s string) (int8, error) {
	v, err := strconv.ParseInt(s, 10, 8)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, fmt.Errorf("%w: %s %s", ErrOutOfRange, name, s)
		}
		return 0, fmt.Errorf("%w: %s %q", ErrBadArgs, name, s)
	}
	return int8(v), nil
}
