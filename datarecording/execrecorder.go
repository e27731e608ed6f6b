package datarecording

import (
	"os"
	"strings"
	"time"
)

// ExecInfoTable holds one row per property of the run that produced a
// recording.
const ExecInfoTable = "exec_info"

const execTimeFormat = "2006-01-02 15:04:05.000000000"

// ExecInfo is one property of a run.
type ExecInfo struct {
	Property string
	Value    string
}

// ExecRecorder records how a run was started and when it ended.
type ExecRecorder struct {
	recorder DataRecorder
	entries  []ExecInfo
}

// StartExecRecorder creates the exec_info table and remembers the start time,
// the command line and the working directory.
func StartExecRecorder(recorder DataRecorder) *ExecRecorder {
	recorder.CreateTable(ExecInfoTable, ExecInfo{})

	e := &ExecRecorder{recorder: recorder}
	e.Set("Start Time", time.Now().Format(execTimeFormat))
	e.Set("Command", strings.Join(os.Args, " "))

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "unknown"
	}

	e.Set("Working Directory", cwd)

	return e
}

// Set adds a property.
func (e *ExecRecorder) Set(property, value string) {
	e.entries = append(e.entries, ExecInfo{Property: property, Value: value})
}

// End writes every property followed by the end time.
func (e *ExecRecorder) End() error {
	e.Set("End Time", time.Now().Format(execTimeFormat))

	for _, entry := range e.entries {
		e.recorder.InsertData(ExecInfoTable, entry)
	}

	e.entries = nil

	return e.recorder.Flush()
}
