// Package serial implements stepcompress.Transport over a physical
// serial link to an MCU, using github.com/tarm/serial for the port
// itself.
package serial

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/tarm/serial"

	"github.com/ocellaris/stepcompress"
)

// Port is a stepcompress.Transport backed by an open serial
// connection.
type Port struct {
	port io.ReadWriteCloser
}

// Open opens the named serial port at baud and wraps it as a
// stepcompress.Transport.
func Open(name string, baud int) (*Port, error) {
	p, err := serial.OpenPort(&serial.Config{Name: name, Baud: baud})
	if err != nil {
		return nil, errors.Wrapf(err, "open serial port %s", name)
	}
	return &Port{port: p}, nil
}

// Close closes the underlying port.
func (p *Port) Close() error {
	return p.port.Close()
}

// SendBatch writes batch to the wire in the order given -- already
// the synchroniser's req_clock order -- framing each payload with a
// big-endian uint16 length prefix.
func (p *Port) SendBatch(batch []stepcompress.QueueMessage) error {
	for _, qm := range batch {
		var hdr [2]byte
		binary.BigEndian.PutUint16(hdr[:], uint16(len(qm.Payload)))
		if _, err := p.port.Write(hdr[:]); err != nil {
			return errors.Wrap(err, "write frame header")
		}
		if _, err := p.port.Write(qm.Payload); err != nil {
			return errors.Wrap(err, "write frame payload")
		}
	}
	return nil
}
