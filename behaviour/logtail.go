package behaviour

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/c360/frontgate/component"
	"github.com/c360/frontgate/errors"
)

// LogFileEnv names the file a log_tail binding watches when its manifest
// args omit an explicit path.
const LogFileEnv = "FRONTGATE_LOG_FILE"

// EventTypeLogLine is the event type emitted for each appended log line.
const EventTypeLogLine = "log_line"

// LogTail tails a file and emits one event per newly appended line. The
// read offset and any trailing partial line live in the runner-owned
// BehaviourState, so a tick that fails leaves the cursor where the last
// successful tick committed it.
type LogTail struct {
	path string
}

var _ component.Behaviour = (*LogTail)(nil)

// NewLogTail builds a LogTail from manifest binding args. The watched path
// comes from args["path"], falling back to the FRONTGATE_LOG_FILE
// environment variable.
func NewLogTail(args map[string]string) (component.Behaviour, error) {
	path := args["path"]
	if path == "" {
		path = os.Getenv(LogFileEnv)
	}
	if path == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "LogTail", "NewLogTail",
			fmt.Sprintf("no path arg and %s is unset", LogFileEnv))
	}
	return &LogTail{path: path}, nil
}

// Name returns the registry identifier for this behaviour.
func (l *LogTail) Name() string { return "log_tail" }

// logLinePayload is the event body for one appended line.
type logLinePayload struct {
	Line   string `json:"line"`
	Offset int64  `json:"offset"`
}

// Tick reads everything appended since the committed offset and emits one
// event per complete line. A tick with no new content emits nothing. A file
// shorter than the committed offset means rotation or truncation; the
// cursor resets and tailing restarts from the top.
func (l *LogTail) Tick(ctx context.Context, state *component.BehaviourState) ([]component.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(l.path)
	if os.IsNotExist(err) {
		// Not written yet. Nothing to emit and nothing to retry.
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "LogTail", "Tick",
			fmt.Sprintf("stat %s", l.path))
	}

	if info.Size() < state.Offset {
		state.Offset = 0
		state.Carry = nil
	}
	if info.Size() == state.Offset {
		return nil, nil
	}

	f, err := os.Open(l.path)
	if err != nil {
		return nil, errors.WrapTransient(err, "LogTail", "Tick",
			fmt.Sprintf("open %s", l.path))
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Seek(state.Offset, io.SeekStart); err != nil {
		return nil, errors.WrapTransient(err, "LogTail", "Tick",
			fmt.Sprintf("seek %s to %d", l.path, state.Offset))
	}

	appended, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.WrapTransient(err, "LogTail", "Tick",
			fmt.Sprintf("read %s", l.path))
	}

	// Commit the cursor only after the read fully succeeded.
	newOffset := state.Offset + int64(len(appended))
	buf := append(state.Carry, appended...)

	var events []component.Event
	now := time.Now()
	consumed := newOffset - int64(len(buf))
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			break
		}
		line := string(buf[:idx])
		buf = buf[idx+1:]
		consumed += int64(idx + 1)

		data, merr := json.Marshal(logLinePayload{Line: line, Offset: consumed})
		if merr != nil {
			return nil, errors.Wrap(merr, "LogTail", "Tick", "marshal line payload")
		}
		events = append(events, component.Event{
			Type:      EventTypeLogLine,
			Timestamp: now,
			Data:      data,
		})
	}

	state.Offset = newOffset
	state.Carry = buf
	return events, nil
}
