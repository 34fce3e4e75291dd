package llm

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// errStreamDone stops the read loop on a [DONE] sentinel.
var errStreamDone = errors.New("stream done")

// readSSE dispatches every data line to onData together with the most
// recent event name. Providers emit one JSON object per data line, so
// lines are not joined across an event.
func readSSE(r io.Reader, onLine func(), onData func(event, data string) error) error {
	br := bufio.NewReaderSize(r, 64*1024)
	eventName := ""
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			if onLine != nil {
				onLine()
			}
			line = strings.TrimRight(line, "\r\n")
			switch {
			case line == "":
				eventName = ""
			case strings.HasPrefix(line, ":"):
				// comment / keep-alive
			case strings.HasPrefix(line, "event:"):
				eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				if data == "[DONE]" {
					return nil
				}
				if data != "" {
					if cbErr := onData(eventName, data); cbErr != nil {
						if errors.Is(cbErr, errStreamDone) {
							return nil
						}
						return cbErr
					}
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
