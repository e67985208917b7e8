package runner

import (
	"time"

	"github.com/entrhq/browser-agent/pkg/config"
)

// Summary describes a finished run.
type Summary struct {
	RunID         string             `json:"run_id"`
	Provider      config.Provider    `json:"provider,omitempty"`
	Model         string             `json:"model,omitempty"`
	TaskSource    string             `json:"task_source,omitempty"`
	RequestedMode config.BrowserMode `json:"requested_mode"`
	Mode          config.BrowserMode `json:"mode,omitempty"`
	CDPURL        string             `json:"cdp_url,omitempty"`
	Steps         int                `json:"steps"`
	Actions       int                `json:"actions"`
	Success       bool               `json:"success"`
	FinalResult   string             `json:"final_result,omitempty"`
	Errors        []string           `json:"errors,omitempty"`
	Error         string             `json:"error,omitempty"`
	State         State              `json:"state"`
	StartTime     time.Time          `json:"start_time"`
	EndTime       time.Time          `json:"end_time"`
	Duration      time.Duration      `json:"duration"`
}
