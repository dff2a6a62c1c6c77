package main

import (
	"errors"

	charmlog "github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

const VIRTUAL_PORT = "looper"

// openPorts finds the named ports, opening virtual ones when they are missing
// or not given.
func openPorts(logger *charmlog.Logger, inName, outName string) (drivers.In, drivers.Out, error) {
	drv, ok := drivers.Get().(*rtmididrv.Driver)
	if !ok {
		return nil, nil, errors.New("rtmidi driver not registered")
	}
	logger.Debug("ports", "inputs", midi.GetInPorts().String(), "outputs", midi.GetOutPorts().String())

	in, err := midi.FindInPort(inName)
	if inName == "" || err != nil {
		logger.Warn("can't find input, opening one", "input", inName)
		in, err = drv.OpenVirtualIn(VIRTUAL_PORT)
		if err != nil {
			return nil, nil, err
		}
	}
	logger.Info("connecting to", "input", in.String())

	out, err := midi.FindOutPort(outName)
	if outName == "" || err != nil {
		logger.Warn("can't find output, opening one", "output", outName)
		out, err = drv.OpenVirtualOut(VIRTUAL_PORT)
		if err != nil {
			return nil, nil, err
		}
	}
	logger.Info("connecting to", "output", out.String())
	return in, out, nil
}
