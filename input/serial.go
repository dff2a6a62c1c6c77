package input

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	. "github.com/JeanRibes/looper/shared"

	"github.com/albenik/go-serial/v2"
	charmlog "github.com/charmbracelet/log"
)

// Keymap maps a key-matrix code to a MIDI note (0-127) or, when negative,
// to the computer key code -value handled by the keyboard translator.
type Keymap map[int]int

// LoadKeymap reads one "code:value" pair per line. Blank lines and lines
// starting with # are skipped.
func LoadKeymap(r io.Reader) (Keymap, error) {
	keymap := Keymap{}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		s := strings.Split(text, ":")
		if len(s) != 2 {
			return nil, fmt.Errorf("keymap line %d: want code:value, got %q", line, text)
		}
		key, err := strconv.Atoi(strings.TrimSpace(s[0]))
		if err != nil {
			return nil, fmt.Errorf("keymap line %d: %w", line, err)
		}
		val, err := strconv.Atoi(strings.TrimSpace(s[1]))
		if err != nil {
			return nil, fmt.Errorf("keymap line %d: %w", line, err)
		}
		if key < 0 || key > 255 || val > 127 {
			return nil, fmt.Errorf("keymap line %d: out of range %d:%d", line, key, val)
		}
		keymap[key] = val
	}
	return keymap, scanner.Err()
}

func LoadKeymapFile(filename string) (Keymap, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadKeymap(f)
}

// KeyMatrix decodes the two byte frames of the serial piano: a status byte
// whose high bit is clear on press, then the key code.
type KeyMatrix struct {
	keymap   Keymap
	keyboard *Keyboard
	state    [256]bool
}

func NewKeyMatrix(keymap Keymap, keyboard *Keyboard) *KeyMatrix {
	return &KeyMatrix{keymap: keymap, keyboard: keyboard}
}

// Frame handles one frame. Repeated presses of a held key are ignored.
func (m *KeyMatrix) Frame(status, code byte) []Message {
	pressed := status>>7 == 0
	if m.state[code] == pressed {
		return nil
	}
	m.state[code] = pressed

	val, ok := m.keymap[int(code)]
	if !ok {
		return nil
	}
	if val < 0 {
		if m.keyboard == nil {
			return nil
		}
		if pressed {
			return m.keyboard.Down(-val)
		}
		return m.keyboard.Up(-val)
	}
	if pressed {
		return []Message{{Type: Note, Number: val, Number2: 64, Boolean: true}}
	}
	return []Message{{Type: Note, Number: val, Boolean: false}}
}

// Read decodes frames from r into sink until r fails or ctx is done.
func (m *KeyMatrix) Read(ctx context.Context, r io.Reader, sink chan<- Message) error {
	buf := make([]byte, 2)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, msg := range m.Frame(buf[0], buf[1]) {
			select {
			case sink <- msg:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// OpenSerial opens the key matrix port and reads it until ctx is done. An
// empty portName picks the first port found. The logger is taken from ctx.
func (m *KeyMatrix) OpenSerial(ctx context.Context, portName string, baud int, sink chan<- Message) error {
	logger := charmlog.FromContext(ctx)
	if portName == "" {
		ports, err := serial.GetPortsList()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			return fmt.Errorf("no serial ports found")
		}
		for _, port := range ports {
			logger.Debug("found port", "port", port)
		}
		portName = ports[0]
	}
	port, err := serial.Open(portName, serial.WithBaudrate(baud))
	if err != nil {
		return err
	}
	context.AfterFunc(ctx, func() { port.Close() })
	if err := port.ResetInputBuffer(); err != nil {
		logger.Warn("reset input buffer", "err", err)
	}
	logger.Info("reading key matrix", "port", portName, "baud", baud)
	return m.Read(ctx, port, sink)
}
