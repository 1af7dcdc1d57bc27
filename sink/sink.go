// Package sink delivers records to the downstream event consumer.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/marcelsud/tower-poller/input"
)

//go:generate mockery --name Writer --output ./mocks --outpkg mocks

/* Writer receives every record an input emits
 * Implementations must be safe for concurrent use: all runners share one sink
 */
type Writer interface {
	Write(ctx context.Context, env input.Envelope) error
}

// JSONLines writes one JSON object per envelope, newline terminated
type JSONLines struct {
	mu  sync.Mutex
	out io.Writer
}

func NewJSONLines(out io.Writer) *JSONLines {
	return &JSONLines{out: out}
}

func (j *JSONLines) Write(ctx context.Context, env input.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.out.Write(line); err != nil {
		return fmt.Errorf("writing envelope: %w", err)
	}
	return nil
}
