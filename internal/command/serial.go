package command

import (
	"fmt"

	serial "go.bug.st/serial"
)

// DefaultBaud matches the robot's command UART.
const DefaultBaud = 9600

// OpenSerial opens the command link to the robot.
func OpenSerial(dev string, baud int) (serial.Port, error) {
	p, err := serial.Open(dev, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", dev, err)
	}
	return p, nil
}

// Ports lists serial ports available on this machine.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}
