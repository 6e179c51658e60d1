package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultAddr             = ":8080"
	DefaultDBPath           = "data/history.db"
	DefaultSessionFile      = "data/session.json"
	DefaultSettingsFile     = "data/settings.json"
	DefaultLogFile          = "agent.log"
	DefaultSessionValidity  = 12 * time.Hour
	DefaultMaxRepliesPerRun = 15
	DefaultRetryAttempts    = 3
	DefaultRetryDelay       = 5 * time.Second
	DefaultBrowserTimeout   = 30 * time.Second
)

// Every key needs a default so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", DefaultAddr)
	v.SetDefault("db_path", DefaultDBPath)
	v.SetDefault("session_file", DefaultSessionFile)
	v.SetDefault("settings_file", DefaultSettingsFile)
	v.SetDefault("timezone", "")
	v.SetDefault("session_validity", DefaultSessionValidity)
	v.SetDefault("max_replies_per_run", DefaultMaxRepliesPerRun)
	v.SetDefault("phrases_file", "")
	v.SetDefault("replies_file", "")
	v.SetDefault("scheduled_tasks", []string{"wish-birthdays", "reply-to-wishes"})
	v.SetDefault("github_url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", DefaultLogFile)

	v.SetDefault("retry.max_attempts", DefaultRetryAttempts)
	v.SetDefault("retry.delay", DefaultRetryDelay)

	v.SetDefault("browser.base_url", "https://www.linkedin.com")
	v.SetDefault("browser.login_path", "/login")
	v.SetDefault("browser.birthdays_path", "/mynetwork/catch-up/birthday/")
	v.SetDefault("browser.messaging_path", "/messaging/")
	v.SetDefault("browser.username", "")
	v.SetDefault("browser.password", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.install_browsers", false)
	v.SetDefault("browser.timeout", DefaultBrowserTimeout)
	v.SetDefault("browser.wish_template", "")
	v.SetDefault("browser.selectors.login_username", "#username")
	v.SetDefault("browser.selectors.login_password", "#password")
	v.SetDefault("browser.selectors.login_submit", "button[type=submit]")
	v.SetDefault("browser.selectors.logged_in", "#global-nav")
	v.SetDefault("browser.selectors.birthday_card", "[data-test-catch-up-card]")
	v.SetDefault("browser.selectors.birthday_name", ".catch-up-card__name")
	v.SetDefault("browser.selectors.birthday_profile", "a[href*='/in/']")
	v.SetDefault("browser.selectors.birthday_message", "button[aria-label^='Message']")
	v.SetDefault("browser.selectors.unread_thread", ".msg-conversation-listitem--unread")
	v.SetDefault("browser.selectors.thread_name", ".msg-conversation-listitem__participant-names")
	v.SetDefault("browser.selectors.thread_snippet", ".msg-conversation-card__message-snippet")
	v.SetDefault("browser.selectors.thread_link", "a.msg-conversation-listitem__link")
	v.SetDefault("browser.selectors.thread_last_message", ".msg-s-event-listitem__body")
	v.SetDefault("browser.selectors.message_input", ".msg-form__contenteditable")
	v.SetDefault("browser.selectors.message_send", "button.msg-form__send-button")
	v.SetDefault("browser.selectors.follower_count", "a[href$='?tab=followers'] span")

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", 0)
	v.SetDefault("telegram.endpoint", "")

	v.SetDefault("email.host", "smtp.gmail.com")
	v.SetDefault("email.port", 465)
	v.SetDefault("email.sender", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.receiver", "")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", "")
	v.SetDefault("openai.timeout", 20*time.Second)
}
