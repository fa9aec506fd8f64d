package config

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// cronParser mirrors gocron's CronJob(schedule, true) parser: seconds field optional.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (c *Config) validateCrossField() error {
	if c.Quiz.CorrectIndex >= len(c.Quiz.Options) {
		return fmt.Errorf("quiz.correct_index %d is out of range for %d options", c.Quiz.CorrectIndex, len(c.Quiz.Options))
	}

	for name, task := range c.Scheduler.Tasks {
		if !task.Enabled || task.Interval > 0 {
			continue
		}
		if task.Schedule == "" {
			return fmt.Errorf("scheduler task %q is enabled but has neither interval nor schedule", name)
		}
		if _, err := cronParser.Parse(task.Schedule); err != nil {
			return fmt.Errorf("scheduler task %q has an invalid schedule %q: %w", name, task.Schedule, err)
		}
	}

	names := make(map[string]bool, len(c.Seed.Bots))
	tokens := make(map[string]bool, len(c.Seed.Bots))
	for _, b := range c.Seed.Bots {
		if names[b.Name] {
			return fmt.Errorf("seed bot name %q is defined more than once", b.Name)
		}
		if tokens[b.Token] {
			return fmt.Errorf("seed bot %q reuses a token of another bot", b.Name)
		}
		names[b.Name] = true
		tokens[b.Token] = true

		triggers := make(map[string]bool, len(b.Handlers))
		for _, h := range b.Handlers {
			if triggers[h.Trigger] {
				return fmt.Errorf("seed bot %q defines trigger %q more than once", b.Name, h.Trigger)
			}
			triggers[h.Trigger] = true
		}
	}

	return nil
}
