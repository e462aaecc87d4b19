// Package schedules manages Temporal schedules for the worker's
// recurring workflows.
package schedules

import (
	"fmt"
	"os"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Definition describes one scheduled workflow.
type Definition struct {
	ScheduleID   string        `yaml:"schedule_id"`
	WorkflowName string        `yaml:"workflow"`
	TaskQueue    string        `yaml:"task_queue"`
	Cron         string        `yaml:"cron"`
	Args         []interface{} `yaml:"args,omitempty"`
	Description  string        `yaml:"description,omitempty"`
	Paused       bool          `yaml:"paused,omitempty"`
}

// Validate checks the definition, including the 5-field cron expression.
func (d Definition) Validate() error {
	if d.ScheduleID == "" {
		return fmt.Errorf("schedule is missing schedule_id")
	}
	if d.WorkflowName == "" {
		return fmt.Errorf("schedule %s is missing workflow", d.ScheduleID)
	}
	if d.TaskQueue == "" {
		return fmt.Errorf("schedule %s is missing task_queue", d.ScheduleID)
	}
	if _, err := cron.ParseStandard(d.Cron); err != nil {
		return fmt.Errorf("schedule %s has invalid cron %q: %w", d.ScheduleID, d.Cron, err)
	}
	return nil
}

// DefaultDefinitions are the schedules every tenant gets.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			ScheduleID:   "harvester-daily",
			WorkflowName: "HarvestWorkflow",
			TaskQueue:    "harvest-tasks",
			Cron:         "0 6 * * *",
			Args:         []interface{}{"all"},
			Description:  "Daily harvest of all suppliers",
		},
		{
			ScheduleID:   "gardener-every-5min",
			WorkflowName: "GardenerWorkflow",
			TaskQueue:    "gardener-tasks",
			Cron:         "*/5 * * * *",
			Description:  "Enrich pending products every 5 minutes",
		},
		{
			ScheduleID:   "retention-daily",
			WorkflowName: "RetentionWorkflow",
			TaskQueue:    "maintenance-tasks",
			Cron:         "0 3 * * *",
			Description:  "Episodic memory retention cleanup",
		},
	}
}

// LoadDefinitions reads schedule definitions from a YAML file. Each
// definition is validated; the first invalid one fails the load.
func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule file %s: %w", path, err)
	}
	var doc struct {
		Schedules []Definition `yaml:"schedules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse schedule file %s: %w", path, err)
	}
	for _, d := range doc.Schedules {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}
	return doc.Schedules, nil
}
