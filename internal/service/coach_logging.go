package service

import (
	"log"
	"strings"
	"unicode/utf8"
)

const maxCoachLogSnippetRunes = 512

// logCoachExchange 输出教练问答的关键信息，方便排查模型行为。
func logCoachExchange(phase, content string) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		log.Printf("[coach] %s: <empty>", phase)
		return
	}

	runeCount := utf8.RuneCountInString(trimmed)
	snippet := trimmed
	if runeCount > maxCoachLogSnippetRunes {
		snippet = string([]rune(trimmed)[:maxCoachLogSnippetRunes]) + "…(truncated)"
	}
	log.Printf("[coach] %s (runes=%d): %s", phase, runeCount, snippet)
}
