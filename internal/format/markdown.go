package format

import (
	"regexp"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ParseResult contains plain text and message entities
type ParseResult struct {
	Text     string
	Entities []tgbotapi.MessageEntity
}

// Matches `code` or **bold**, whichever comes first
var markupRe = regexp.MustCompile("`([^`]+?)`|\\*\\*(.+?)\\*\\*")

// UTF16Len returns the length of s in UTF-16 code units, the unit Telegram
// uses for entity offsets.
func UTF16Len(s string) int {
	length := 0
	for _, b := range []byte(s) {
		if (b & 0xc0) != 0x80 {
			if b >= 0xf0 {
				length += 2 // surrogate pair
			} else {
				length++
			}
		}
	}
	return length
}

// ParseMarkdown strips **bold** and `code` markers from text and returns the
// matching Telegram entities, so messages never depend on Telegram's own
// Markdown escaping.
func ParseMarkdown(text string) ParseResult {
	var entities []tgbotapi.MessageEntity
	result := text

	pos := 0
	for {
		loc := markupRe.FindStringSubmatchIndex(result[pos:])
		if loc == nil {
			break
		}
		for i := range loc {
			if loc[i] != -1 {
				loc[i] += pos
			}
		}

		kind, inner := "code", ""
		if loc[2] != -1 {
			inner = result[loc[2]:loc[3]]
		} else {
			kind, inner = "bold", result[loc[4]:loc[5]]
		}

		entities = append(entities, tgbotapi.MessageEntity{
			Type:   kind,
			Offset: UTF16Len(result[:loc[0]]),
			Length: UTF16Len(inner),
		})
		result = result[:loc[0]] + inner + result[loc[1]:]
		// Continue after the span so its content stays literal
		pos = loc[0] + len(inner)
	}

	return ParseResult{
		Text:     strings.TrimRight(result, " \n"),
		Entities: entities,
	}
}
