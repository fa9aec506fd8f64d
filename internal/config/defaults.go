package config

import (
	"time"

	"github.com/spf13/viper"
)

// Task names known to the scheduler.
const (
	TaskPollAndModerate = "poll_and_moderate"
	TaskSQLMaintenance  = "sql_maintenance"
)

// DefaultInstruction asks the classifier for a single-word verdict.
const DefaultInstruction = "You are a chat moderator. Decide whether the user message is toxic: insulting, " +
	"harassing, hateful or threatening toward a person or group. Answer with exactly one word, " +
	"TOXIC or SAFE, and nothing else."

var defaults = map[string]any{
	"logger.level": "info",
	"logger.json":  false,

	"database.path": "moderabot.db",

	"telegram.api_url":         "https://api.telegram.org",
	"telegram.poll_timeout":    10 * time.Second,
	"telegram.request_timeout": 30 * time.Second,
	"telegram.updates_limit":   100,

	"classifier.provider":    "deepseek",
	"classifier.base_url":    "",
	"classifier.model":       "",
	"classifier.timeout":     30 * time.Second,
	"classifier.instruction": DefaultInstruction,

	"scheduler.max_parallel_bots":  4,
	"scheduler.max_parallel_chats": 4,

	"scheduler.tasks." + TaskPollAndModerate + ".enabled":  true,
	"scheduler.tasks." + TaskPollAndModerate + ".interval": 5 * time.Second,
	"scheduler.tasks." + TaskSQLMaintenance + ".enabled":   true,
	"scheduler.tasks." + TaskSQLMaintenance + ".schedule":  "0 0 4 * * *",

	"messages.menu_label":           "Press a button!",
	"messages.target_not_found":     "Can't find the message you are reporting.",
	"messages.window_expired":       "More than a day has passed. That train has left.",
	"messages.already_checked":      "This message has already been checked for toxicity.",
	"messages.cannot_report_bot":    "Bots can't be reported.",
	"messages.cannot_self_report":   "You can't report yourself.",
	"messages.nothing_to_check":     "The reported message has no text to check.",
	"messages.report_credited":      "Well done! Toxic message confirmed: +1 toxicity for the author, +1 KPI for you.",
	"messages.report_penalized":     "Not toxic. -1 KPI for the false report and +1 toxicity for you.",
	"messages.check_failed":         "Couldn't check the message right now. Please try again later.",
	"messages.toxic_header":         "🏆 Toxic top 🏆",
	"messages.kpi_header":           "🏆 KPI 🏆",
	"messages.no_toxic_entries":     "No toxic users.",
	"messages.no_kpi_entries":       "No KPI entries.",
	"messages.unknown_user_display": "Unknown user",

	"quiz.question":      "Which of these is the best way to answer a toxic message?",
	"quiz.options":       []string{"Reply with more toxicity", "Report it", "Leave the chat"},
	"quiz.correct_index": 1,

	"leaderboard.toxic_callback": "ToxicTop",
	"leaderboard.kpi_callback":   "MyKPI",
}

func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}
