package event

import "strings"

// Mentioned returns true when the comment body addresses the bot, either
// as a direct @username mention or by bare name. GitHub treats mentions
// as case-insensitive.
func Mentioned(body, botUsername string) bool {
	username := strings.ToLower(strings.TrimSpace(botUsername))
	if username == "" || body == "" {
		return false
	}

	lower := strings.ToLower(body)
	if strings.Contains(lower, "@"+username) {
		return true
	}
	// Bare name references count too, so follow-ups can drop the @.
	return strings.Contains(lower, username)
}

// codeKeywords gate the code-change flow: a request has to sound like
// work on the repository before the bot is allowed to open a PR for it.
var codeKeywords = []string{
	"fix",
	"change",
	"update",
	"add",
	"remove",
	"refactor",
	"implement",
}

// WantsCodeChange returns true when the comment reads as a request to
// modify repository content rather than a question.
func WantsCodeChange(body string) bool {
	lower := strings.ToLower(body)
	for _, keyword := range codeKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
