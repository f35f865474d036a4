package logging

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGELFHandler returns a JSON slog handler that ships records to a Graylog
// input over UDP. The returned closer releases the socket.
func NewGELFHandler(addr string, opts *slog.HandlerOptions) (slog.Handler, io.Closer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to graylog at %s: %w", addr, err)
	}
	w.Facility = "hardpoint"
	return slog.NewJSONHandler(w, opts), w, nil
}
