package languageserver

import (
	"io"

	"go.uber.org/multierr"
)

// duplex joins a process's stdout and stdin into a single stream for jsonrpc2.
type duplex struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

func (d *duplex) Read(p []byte) (int, error) {
	return d.reader.Read(p)
}

func (d *duplex) Write(p []byte) (int, error) {
	return d.writer.Write(p)
}

// Close closes stdin first so the process sees EOF, then stops reading its output.
func (d *duplex) Close() error {
	return multierr.Append(d.writer.Close(), d.reader.Close())
}
