package eml

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
)

// lineReader yields lines without their LF or CRLF terminator and adds
// len(line)+2 to the shared decoded-size counter for every line it returns.
type lineReader struct {
	ctx     context.Context
	r       *bufio.Reader
	counter *atomic.Int64
}

func newLineReader(ctx context.Context, r io.Reader, counter *atomic.Int64) *lineReader {
	return &lineReader{
		ctx:     ctx,
		r:       bufio.NewReaderSize(r, 64*1024),
		counter: counter,
	}
}

// next returns the next line, or io.EOF once the input is exhausted. A
// final line without terminator is still returned.
func (lr *lineReader) next() (string, error) {
	if err := lr.ctx.Err(); err != nil {
		return "", err
	}

	line, err := lr.r.ReadString('\n')
	if err != nil {
		if ctxErr := lr.ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if err != io.EOF {
			return "", fmt.Errorf("failed to read line: %w", err)
		}
		if line == "" {
			return "", io.EOF
		}
	}

	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	lr.counter.Add(int64(len(line) + 2))
	return line, nil
}
