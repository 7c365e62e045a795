package dispatch

import (
	"regexp"
	"strings"
)

const masked = "***MASKED***"

// Patterns for secrets that commonly leak through handler error text.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[a-zA-Z0-9]{48}`),
	regexp.MustCompile(`(?i)(?:password|passwd|pwd)[\s:=]+\S+`),
	regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
}

// maskSensitive scrubs configured API-key values and known secret shapes
// out of text before it is echoed back to a chat.
func maskSensitive(text string, apiKeys map[string]string) string {
	if text == "" {
		return text
	}
	for _, key := range apiKeys {
		if key != "" {
			text = strings.ReplaceAll(text, key, masked)
		}
	}
	for _, re := range sensitivePatterns {
		text = re.ReplaceAllString(text, masked)
	}
	return text
}
