package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Action names understood by BrowserLoop.
const (
	ActionGoToURL      = "go_to_url"
	ActionClick        = "click"
	ActionInputText    = "input_text"
	ActionSelectOption = "select_option"
	ActionScroll       = "scroll"
	ActionGoBack       = "go_back"
	ActionSendKeys     = "send_keys"
	ActionWait         = "wait"
	ActionExtract      = "extract_content"
	ActionDone         = "done"
)

// ErrNoActions is returned for a reply that names no action.
var ErrNoActions = errors.New("model reply contains no actions")

// Action is one parsed action with its parameters.
type Action struct {
	Type     string
	Index    *int
	URL      string
	Text     string
	Keys     string
	Down     bool
	NumPages float64
	Seconds  float64
	Success  bool
}

type actionParams struct {
	Index    *int     `json:"index"`
	URL      string   `json:"url"`
	Text     string   `json:"text"`
	Keys     string   `json:"keys"`
	Down     *bool    `json:"down"`
	NumPages *float64 `json:"num_pages"`
	Seconds  *float64 `json:"seconds"`
	Success  *bool    `json:"success"`
}

// Reply is the model's answer for one step.
type Reply struct {
	Thinking   string `json:"thinking"`
	Evaluation string `json:"evaluation_previous_goal"`
	Memory     string `json:"memory"`
	NextGoal   string `json:"next_goal"`

	RawActions []map[string]json.RawMessage `json:"action"`
	Actions    []Action                     `json:"-"`
}

// ParseReply decodes a model reply. Code fences and text around the JSON
// object are ignored, and malformed JSON is repaired before giving up.
func ParseReply(text string) (*Reply, error) {
	raw := extractObject(text)
	if raw == "" {
		return nil, fmt.Errorf("model reply is not JSON: %q", preview(text))
	}

	var reply Reply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(raw)
		if repairErr != nil {
			return nil, fmt.Errorf("failed to parse model reply: %w", err)
		}
		reply = Reply{}
		if err := json.Unmarshal([]byte(repaired), &reply); err != nil {
			return nil, fmt.Errorf("failed to parse repaired model reply: %w", err)
		}
	}

	for _, item := range reply.RawActions {
		action, err := decodeAction(item)
		if err != nil {
			return nil, err
		}
		reply.Actions = append(reply.Actions, action)
	}
	if len(reply.Actions) == 0 {
		return nil, ErrNoActions
	}
	return &reply, nil
}

// Names returns the action types in order.
func (r *Reply) Names() []string {
	names := make([]string, len(r.Actions))
	for i, a := range r.Actions {
		names[i] = a.Type
	}
	return names
}

func decodeAction(item map[string]json.RawMessage) (Action, error) {
	if len(item) != 1 {
		return Action{}, fmt.Errorf("each action must name exactly one action type, got %d", len(item))
	}

	var action Action
	for name, body := range item {
		action.Type = strings.TrimSpace(name)

		var p actionParams
		if len(body) > 0 && string(body) != "null" {
			if err := json.Unmarshal(body, &p); err != nil {
				return Action{}, fmt.Errorf("invalid parameters for %s: %w", name, err)
			}
		}
		action.Index = p.Index
		action.URL = strings.TrimSpace(p.URL)
		action.Text = p.Text
		action.Keys = p.Keys
		action.Down = p.Down == nil || *p.Down
		action.NumPages = 1
		if p.NumPages != nil && *p.NumPages > 0 {
			action.NumPages = *p.NumPages
		}
		action.Seconds = 3
		if p.Seconds != nil && *p.Seconds >= 0 {
			action.Seconds = *p.Seconds
		}
		action.Success = p.Success == nil || *p.Success
	}
	return action, nil
}

func extractObject(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(text, "}")
	if end < start {
		// truncated reply; let the repair pass close it
		return text[start:]
	}
	return text[start : end+1]
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > 120 {
		return string(r[:120]) + "..."
	}
	return s
}
