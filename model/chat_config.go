package model

// Keys of the per-chat configuration document. Every key has a default in
// Defaults, so a chat document is usable from its very first read.
const (
	KeyTitle              = "title"
	KeyLink               = "link"
	KeyEnabled            = "enabled"
	KeyRestrictNonText    = "restrict_non_text"
	KeyCaptchaTime        = "captcha_time"
	KeyCaptchaDifficulty  = "captcha_difficulty"
	KeyCaptchaMode        = "captcha_mode"
	KeyLanguage           = "language"
	KeyWelcomeMsg         = "welcome_msg"
	KeyIgnoreList         = "ignore_list"
	KeyProtected          = "protected"
	KeyProtectionUser     = "protection_current_user"
	KeyProtectionTime     = "protection_current_time"
	KeyTriggerList        = "trigger_list"
	KeyQuestionList       = "question_list"
	KeyTriggerChar        = "trigger_char"
)

// Captcha character set modes.
const (
	CaptchaModeDigits = "digits"
	CaptchaModeHex    = "hex"
	CaptchaModeASCII  = "ascii"
)

// WelcomeDisabled is the sentinel stored when the welcome message is turned off.
const WelcomeDisabled = "-"

// Limits enforced by the command surface.
const (
	MinCaptchaTimeMin    = 1
	MaxCaptchaTimeMin    = 120
	MinCaptchaDifficulty = 1
	MaxCaptchaDifficulty = 5
	MaxIgnoreListSize    = 100
	MaxWelcomeMsgLength  = 1024
)

// DefaultWelcomeMsg supports $user, $name, $id and $link placeholders,
// expanded when the message is sent.
const DefaultWelcomeMsg = "Welcome $user, you are now verified."

var defaults = map[string]string{
	KeyTitle:             "",
	KeyLink:              "",
	KeyEnabled:           "true",
	KeyRestrictNonText:   "false",
	KeyCaptchaTime:       "5",
	KeyCaptchaDifficulty: "2",
	KeyCaptchaMode:       CaptchaModeDigits,
	KeyLanguage:          "EN",
	KeyWelcomeMsg:        DefaultWelcomeMsg,
	KeyIgnoreList:        "[]",
	KeyProtected:         "false",
	KeyProtectionUser:    "",
	KeyProtectionTime:    "0",
	KeyTriggerList:       "{}",
	KeyQuestionList:      "{}",
	KeyTriggerChar:       "#",
}

// DefaultValue returns the documented default for a config key. Unknown keys
// default to the empty string.
func DefaultValue(key string) string {
	return defaults[key]
}

// Defaults returns a copy of the full default document.
func Defaults() map[string]string {
	out := make(map[string]string, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	return out
}

// ValidCaptchaMode reports whether mode is one of the supported char sets.
func ValidCaptchaMode(mode string) bool {
	return mode == CaptchaModeDigits || mode == CaptchaModeHex || mode == CaptchaModeASCII
}

// QuizQuestion is one entry of a chat's question bank.
type QuizQuestion struct {
	Prompt string   `json:"q"`
	Answer string   `json:"a"`
	Wrongs []string `json:"wrongs"`
}
