// File: internal/agent/tools.go
// Tool vocabulary offered to the remote agent, and the dispatcher mapping its
// invocations onto backend actuation calls. Actuation and protocol failures
// surface as tool_result text so the agent can observe and adapt; they never
// unwind the run loop.
package agent

import (
	"context"
	"fmt"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/argoseyes/uxprobe/internal/backend"
	"github.com/argoseyes/uxprobe/internal/container"
)

const (
	toolComputer = "computer"
	toolBash     = "bash"
	toolEditor   = "str_replace_editor"
)

// ToolsFor builds the vocabulary advertised to the agent for the given
// backend. Shell-dependent tools are offered only where a shell exists.
func ToolsFor(b backend.Backend, width, height int) []Tool {
	tools := []Tool{
		{
			Name: toolComputer,
			Description: fmt.Sprintf(
				"Interact with a %dx%d virtual display. Take screenshots, click, type text, press keys and scroll.",
				width, height),
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"action": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"screenshot", "click", "type", "key", "scroll"},
						"description": "The action to perform.",
					},
					"coordinate": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "integer"},
						"description": "[x, y] pixel coordinate for click and scroll actions.",
					},
					"text": map[string]interface{}{
						"type":        "string",
						"description": "Text to type, or the key symbol to press.",
					},
					"scroll_direction": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"up", "down", "left", "right"},
						"description": "Direction for scroll actions.",
					},
					"scroll_amount": map[string]interface{}{
						"type":        "integer",
						"description": "Magnitude for scroll actions. Omit for a sensible default.",
					},
				},
				"required": []string{"action"},
			},
		},
	}

	if b.SupportsShell() {
		tools = append(tools,
			Tool{
				Name:        toolBash,
				Description: "Run a shell command inside the test environment and return its output.",
				InputSchema: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"command": map[string]interface{}{
							"type":        "string",
							"description": "The command to execute.",
						},
					},
					"required": []string{"command"},
				},
			},
			Tool{
				Name:        toolEditor,
				Description: "View or create files inside the test environment.",
				InputSchema: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"command": map[string]interface{}{
							"type":        "string",
							"enum":        []string{"view", "create"},
							"description": "The editor operation.",
						},
						"path": map[string]interface{}{
							"type":        "string",
							"description": "Absolute path of the target file.",
						},
						"file_text": map[string]interface{}{
							"type":        "string",
							"description": "Full file content for the create command.",
						},
					},
					"required": []string{"command", "path"},
				},
			},
		)
	}
	return tools
}

// computerInput is the parsed input of a computer tool invocation.
type computerInput struct {
	Action          string `json:"action"`
	Coordinate      []int  `json:"coordinate"`
	Text            string `json:"text"`
	ScrollDirection string `json:"scroll_direction"`
	ScrollAmount    int    `json:"scroll_amount"`
}

// bashInput is the parsed input of a bash tool invocation.
type bashInput struct {
	Command string `json:"command"`
}

// editorInput is the parsed input of a str_replace_editor invocation.
type editorInput struct {
	Command  string `json:"command"`
	Path     string `json:"path"`
	FileText string `json:"file_text"`
}

// dispatchTool executes one tool invocation against the backend and returns
// the textual outcome plus an error flag for the tool_result block. A true
// flag marks an actuation failure or protocol violation; the caller still
// continues the loop either way.
func dispatchTool(ctx context.Context, b backend.Backend, run *Run, inv *ContentBlock, logger *zap.Logger) (string, bool) {
	switch inv.Name {
	case toolComputer:
		var in computerInput
		if err := json.Unmarshal(inv.Input, &in); err != nil {
			v := &ProtocolViolation{Detail: fmt.Sprintf("malformed computer tool input: %v", err)}
			return v.Error(), true
		}
		return dispatchComputer(ctx, b, run, in, logger)

	case toolBash:
		var in bashInput
		if err := json.Unmarshal(inv.Input, &in); err != nil {
			v := &ProtocolViolation{Detail: fmt.Sprintf("malformed bash tool input: %v", err)}
			return v.Error(), true
		}
		if in.Command == "" {
			v := &ProtocolViolation{Detail: "bash tool invoked without a command"}
			return v.Error(), true
		}
		out, err := b.RunShell(ctx, in.Command)
		if err != nil {
			actErr := &ActuationError{Action: "shell", Err: err}
			run.Logf("Shell command failed: %v", err)
			return actErr.Error(), true
		}
		run.Logf("Ran shell command: %s", in.Command)
		if out == "" {
			return "(no output)", false
		}
		return out, false

	case toolEditor:
		var in editorInput
		if err := json.Unmarshal(inv.Input, &in); err != nil {
			v := &ProtocolViolation{Detail: fmt.Sprintf("malformed editor tool input: %v", err)}
			return v.Error(), true
		}
		return dispatchEditor(ctx, b, run, in)

	default:
		v := &ProtocolViolation{Detail: fmt.Sprintf("unknown tool %q", inv.Name)}
		logger.Warn("Agent invoked unknown tool", zap.String("tool", inv.Name))
		return v.Error(), true
	}
}

// dispatchComputer maps a computer action onto the corresponding backend call.
func dispatchComputer(ctx context.Context, b backend.Backend, run *Run, in computerInput, logger *zap.Logger) (string, bool) {
	fail := func(action string, err error) (string, bool) {
		actErr := &ActuationError{Action: action, Err: err}
		run.Logf("Action %s failed: %v", action, err)
		logger.Warn("Actuation failed", zap.String("action", action), zap.Error(err))
		return actErr.Error(), true
	}

	switch in.Action {
	case "screenshot":
		// The fresh capture is attached by the caller; here we only confirm.
		run.Logf("Took screenshot")
		return "Screenshot captured", false

	case "click":
		x, y, err := coordinatePair(in.Coordinate)
		if err != nil {
			v := &ProtocolViolation{Detail: err.Error()}
			return v.Error(), true
		}
		if err := b.Click(ctx, x, y); err != nil {
			return fail("click", err)
		}
		run.Logf("Clicked at (%d, %d)", x, y)
		return fmt.Sprintf("Clicked at (%d, %d)", x, y), false

	case "type":
		if in.Text == "" {
			v := &ProtocolViolation{Detail: "type action requires non-empty text"}
			return v.Error(), true
		}
		if err := b.Type(ctx, in.Text); err != nil {
			return fail("type", err)
		}
		run.Logf("Typed text: %q", in.Text)
		return fmt.Sprintf("Typed %q", in.Text), false

	case "key":
		if in.Text == "" {
			v := &ProtocolViolation{Detail: "key action requires a key symbol in text"}
			return v.Error(), true
		}
		if err := b.Key(ctx, in.Text); err != nil {
			return fail("key", err)
		}
		run.Logf("Pressed key: %s", in.Text)
		return fmt.Sprintf("Pressed key %s", in.Text), false

	case "scroll":
		x, y, err := coordinatePair(in.Coordinate)
		if err != nil {
			v := &ProtocolViolation{Detail: err.Error()}
			return v.Error(), true
		}
		dir := in.ScrollDirection
		if dir == "" {
			dir = "down"
		}
		if err := b.Scroll(ctx, x, y, dir, in.ScrollAmount); err != nil {
			return fail("scroll", err)
		}
		run.Logf("Scrolled %s at (%d, %d)", dir, x, y)
		return fmt.Sprintf("Scrolled %s at (%d, %d)", dir, x, y), false

	default:
		v := &ProtocolViolation{Detail: fmt.Sprintf("unknown computer action %q", in.Action)}
		return v.Error(), true
	}
}

// dispatchEditor serves the minimal view/create surface over the backend
// shell. Everything else is rejected as a violation.
func dispatchEditor(ctx context.Context, b backend.Backend, run *Run, in editorInput) (string, bool) {
	if in.Path == "" {
		v := &ProtocolViolation{Detail: "editor invoked without a path"}
		return v.Error(), true
	}
	switch in.Command {
	case "view":
		out, err := b.RunShell(ctx, "cat -n "+container.ShellQuote(in.Path))
		if err != nil {
			actErr := &ActuationError{Action: "editor view", Err: err}
			return actErr.Error(), true
		}
		run.Logf("Viewed file: %s", in.Path)
		return out, false

	case "create":
		cmd := fmt.Sprintf("printf '%%s' %s > %s",
			container.ShellQuote(in.FileText), container.ShellQuote(in.Path))
		if _, err := b.RunShell(ctx, cmd); err != nil {
			actErr := &ActuationError{Action: "editor create", Err: err}
			return actErr.Error(), true
		}
		run.Logf("Created file: %s", in.Path)
		return fmt.Sprintf("Created %s", in.Path), false

	default:
		v := &ProtocolViolation{Detail: fmt.Sprintf("unsupported editor command %q", in.Command)}
		return v.Error(), true
	}
}

// coordinatePair validates a [x, y] coordinate array from tool input.
func coordinatePair(coord []int) (int, int, error) {
	if len(coord) != 2 {
		return 0, 0, fmt.Errorf("coordinate must be [x, y], got %d elements", len(coord))
	}
	return coord[0], coord[1], nil
}
