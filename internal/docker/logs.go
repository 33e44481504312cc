package docker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// maxLogLine bounds a single scanned log line
const maxLogLine = 1024 * 1024

// waitForLogText reads the log stream line by line until a line contains text.
// The stream is closed when ctx ends so a blocked read returns.
func waitForLogText(ctx context.Context, logs io.ReadCloser, text string) error {
	found := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(logs)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLogLine)

		lines := 0
		for scanner.Scan() {
			lines++
			if strings.Contains(scanner.Text(), text) {
				found <- nil
				return
			}
		}
		if err := scanner.Err(); err != nil {
			found <- fmt.Errorf("error reading log stream at line %d: %w", lines, err)
			return
		}
		found <- fmt.Errorf("log stream ended after %d lines without %q", lines, text)
	}()

	select {
	case err := <-found:
		_ = logs.Close()
		return err
	case <-ctx.Done():
		_ = logs.Close()
		<-found
		return ctx.Err()
	}
}
