package parallel

import (
	"encoding/json"
	"fmt"

	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
	"github.com/abdul-hamid-achik/hitrun/packages/core/runner"
)

// Command names a worker protocol message
type Command string

const (
	CmdOnline Command = "online"
	CmdRun    Command = "run"
	CmdResult Command = "result"
	CmdError  Command = "error"
)

// Message is one line of the worker protocol
type Message struct {
	Cmd  Command         `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
}

// RunData is the payload of a run command
type RunData struct {
	Project    *model.Project `json:"project"`
	Iterations int            `json:"iterations"`
	Options    runner.Options `json:"options"`
}

func newMessage(cmd Command, data any) (Message, error) {
	msg := Message{Cmd: cmd}
	if data == nil {
		return msg, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return msg, fmt.Errorf("failed to encode %s message: %w", cmd, err)
	}
	msg.Data = raw
	return msg, nil
}

func (m Message) errorText() string {
	var text string
	if err := json.Unmarshal(m.Data, &text); err != nil {
		return string(m.Data)
	}
	return text
}
