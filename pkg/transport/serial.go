package transport

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	customlog "github.com/open-teleop/rov-bridge/pkg/log"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// lineDelimiter frames commands and telemetry on the serial link.
const lineDelimiter = '\n'

// maxLineSize bounds one telemetry line.
const maxLineSize = 64 * 1024

// PortInfo describes one serial port found on the host. The enumerator
// has no manufacturer field, so Manufacturer carries the OS product string.
type PortInfo struct {
	Path         string `json:"path"`
	Manufacturer string `json:"manufacturer"`
	Product      string `json:"product,omitempty"`
	SerialNumber string `json:"serialNumber,omitempty"`
	VID          string `json:"vendorId,omitempty"`
	PID          string `json:"productId,omitempty"`
	IsUSB        bool   `json:"isUsb"`
}

// ListPorts returns the serial ports present on the host.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, portInfo(d))
	}
	return ports, nil
}

func portInfo(d *enumerator.PortDetails) PortInfo {
	return PortInfo{
		Path:         d.Name,
		Manufacturer: d.Product,
		Product:      d.Product,
		SerialNumber: d.SerialNumber,
		VID:          d.VID,
		PID:          d.PID,
		IsUSB:        d.IsUSB,
	}
}

// SerialDialer opens newline-delimited serial links.
type SerialDialer struct {
	BaudRate   int
	BufferSize int
	Logger     customlog.Logger
}

// Dial opens the port at target. Opening is synchronous, so an error here
// means the port could not be opened at all.
func (d *SerialDialer) Dial(target string, sink Sink) (Transport, error) {
	port, err := serial.Open(target, &serial.Mode{BaudRate: d.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", target, err)
	}

	t := newSerialTransport(target, port, sink, d.BufferSize, d.Logger)
	go t.run()
	return t, nil
}

type serialTransport struct {
	target    string
	port      io.ReadWriteCloser
	sink      *onceSink
	out       *outbox
	logger    customlog.Logger
	lineLimit int
	closeOnce sync.Once
	closeErr  error
}

func newSerialTransport(target string, port io.ReadWriteCloser, sink Sink, bufferSize int, logger customlog.Logger) *serialTransport {
	return &serialTransport{
		target:    target,
		port:      port,
		sink:      newOnceSink(sink),
		out:       newOutbox(bufferSize),
		logger:    logger.WithField("transport", "serial"),
		lineLimit: maxLineSize,
	}
}

// run reads lines until the port fails or is closed. A line longer than
// lineLimit is skipped up to the next delimiter; the link stays up.
func (t *serialTransport) run() {
	t.sink.Opened()
	go t.writeLoop()

	r := bufio.NewReaderSize(t.port, t.lineLimit)
	skipping := false
	var readErr error
	for {
		line, err := r.ReadSlice(lineDelimiter)
		if errors.Is(err, bufio.ErrBufferFull) {
			if !skipping {
				t.logger.Warnf("Dropping telemetry line from %s longer than %d bytes", t.target, t.lineLimit)
			}
			skipping = true
			continue
		}
		if skipping {
			skipping = false
		} else {
			t.deliver(line)
		}
		if err != nil {
			readErr = err
			break
		}
	}

	if !t.out.closed() {
		if errors.Is(readErr, io.EOF) {
			readErr = errors.New("serial port closed by device")
		}
		t.sink.Failed(readErr)
		t.out.close()
		t.port.Close()
	}
	t.sink.Closed()
}

func (t *serialTransport) deliver(line []byte) {
	line = bytes.TrimRight(line, "\r\n")
	if len(line) == 0 {
		return
	}
	data := make([]byte, len(line))
	copy(data, line)
	t.sink.Message(data)
}

func (t *serialTransport) writeLoop() {
	for {
		select {
		case payload := <-t.out.ch:
			frame := append(payload, lineDelimiter)
			if _, err := t.port.Write(frame); err != nil {
				t.logger.Warnf("Write to %s failed: %v", t.target, err)
			}
		case <-t.out.done:
			return
		}
	}
}

// Send implements Transport.
func (t *serialTransport) Send(payload []byte) error {
	buf := make([]byte, len(payload), len(payload)+1)
	copy(buf, payload)
	return t.out.push(buf)
}

// Close implements Transport.
func (t *serialTransport) Close() error {
	t.closeOnce.Do(func() {
		t.out.close()
		t.closeErr = t.port.Close()
	})
	return t.closeErr
}
