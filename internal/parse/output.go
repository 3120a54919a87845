// Package parse converts stored string-encoded inference payloads into typed
// records, using the function's declared output shape to pick the schema.
// Malformed payloads are surfaced as per-row errors; nothing is repaired
// silently.
package parse

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/kalambet/curator/internal/config"
	"github.com/kalambet/curator/internal/storage"
	"github.com/kalambet/curator/internal/tsid"
)

// Error reports a payload that failed validation, naming the row it came
// from so a caller can tell which record in a result set is bad.
type Error struct {
	RowID tsid.ID
	Field string // "input" or "output"
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("parsing %s of row %s: %v", e.Field, e.RowID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// BlockType discriminates chat content blocks.
type BlockType string

const (
	BlockText     BlockType = "text"
	BlockToolCall BlockType = "tool_call"
)

// ContentBlock is one element of a chat-shaped output: either a text block
// or a tool call.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// Text blocks.
	Text string `json:"text,omitempty"`

	// Tool call blocks.
	ToolName  string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	CallID    string `json:"id,omitempty"`
}

// JSONOutput is the converted form of a structured function's output. Parsed
// is nil when the raw payload is not valid JSON; the raw text is always
// preserved.
type JSONOutput struct {
	Raw    string         `json:"raw"`
	Parsed map[string]any `json:"parsed,omitempty"`
}

// Output is the typed output of one inference. Exactly one of Chat/JSON is
// populated, matching the function's declared output kind.
type Output struct {
	Kind config.OutputKind `json:"kind"`
	Chat []ContentBlock    `json:"chat,omitempty"`
	JSON *JSONOutput       `json:"json,omitempty"`
}

// Inference is a fully converted inference record.
type Inference struct {
	ID           tsid.ID        `json:"id"`
	FunctionName string         `json:"function_name"`
	VariantName  string         `json:"variant_name"`
	EpisodeID    tsid.ID        `json:"episode_id"`
	Timestamp    time.Time      `json:"timestamp"`
	Input        map[string]any `json:"input"`
	Output       Output         `json:"output"`
}

// Row converts one stored row into a typed Inference using the function's
// declared output shape.
func Row(fn config.FunctionConfig, row storage.InferenceRow) (Inference, error) {
	input, err := parseInput(row.Input)
	if err != nil {
		return Inference{}, &Error{RowID: row.ID, Field: "input", Err: err}
	}

	output, err := ParseOutput(fn, row.Output)
	if err != nil {
		return Inference{}, &Error{RowID: row.ID, Field: "output", Err: err}
	}

	return Inference{
		ID:           row.ID,
		FunctionName: row.FunctionName,
		VariantName:  row.VariantName,
		EpisodeID:    row.EpisodeID,
		Timestamp:    row.Timestamp(),
		Input:        input,
		Output:       output,
	}, nil
}

func parseInput(raw string) (map[string]any, error) {
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("input is not valid JSON")
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return nil, fmt.Errorf("input is not a JSON object: %w", err)
	}
	return input, nil
}

// ParseOutput converts a stored output payload according to the function's
// output kind. Chat payloads must be a JSON array of well-formed content
// blocks; a malformed block is an error, not a skipped element. JSON payloads
// keep their raw text and carry a nil Parsed when validation fails.
func ParseOutput(fn config.FunctionConfig, raw string) (Output, error) {
	switch fn.Output {
	case config.OutputChat:
		blocks, err := parseChatBlocks(raw)
		if err != nil {
			return Output{}, err
		}
		return Output{Kind: config.OutputChat, Chat: blocks}, nil
	case config.OutputJSON:
		return Output{Kind: config.OutputJSON, JSON: parseJSONOutput(raw)}, nil
	default:
		return Output{}, fmt.Errorf("unknown output kind %q", fn.Output)
	}
}

func parseChatBlocks(raw string) ([]ContentBlock, error) {
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("chat output is not valid JSON")
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("chat output is not a JSON array")
	}

	var blocks []ContentBlock
	var blockErr error
	parsed.ForEach(func(_, el gjson.Result) bool {
		i := len(blocks)
		if !el.IsObject() {
			blockErr = fmt.Errorf("content block %d is not an object", i)
			return false
		}
		switch BlockType(el.Get("type").String()) {
		case BlockText:
			text := el.Get("text")
			if text.Type != gjson.String {
				blockErr = fmt.Errorf("text block %d: missing text field", i)
				return false
			}
			blocks = append(blocks, ContentBlock{Type: BlockText, Text: text.String()})
		case BlockToolCall:
			name := el.Get("name")
			if name.Type != gjson.String || name.String() == "" {
				blockErr = fmt.Errorf("tool call block %d: missing name", i)
				return false
			}
			blocks = append(blocks, ContentBlock{
				Type:      BlockToolCall,
				ToolName:  name.String(),
				Arguments: el.Get("arguments").String(),
				CallID:    el.Get("id").String(),
			})
		default:
			blockErr = fmt.Errorf("content block %d: unknown type %q", i, el.Get("type").String())
			return false
		}
		return true
	})
	if blockErr != nil {
		return nil, blockErr
	}
	return blocks, nil
}

func parseJSONOutput(raw string) *JSONOutput {
	out := &JSONOutput{Raw: raw}
	if !gjson.Valid(raw) {
		return out
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return out
	}
	out.Parsed = parsed
	return out
}
