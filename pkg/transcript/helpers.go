package transcript

import (
	"regexp"
	"strings"

	"github.com/papercomputeco/studio/pkg/history"
	"github.com/papercomputeco/studio/pkg/utils"
)

const (
	// titleLength is the number of runes of the first message kept in a title.
	titleLength = 50

	// UntitledConversation is the title of an empty conversation.
	UntitledConversation = "New conversation"
)

var codeBlockPattern = regexp.MustCompile("```(\\w*)\\n([\\s\\S]*?)```")

// CodeBlock is one fenced block of a reply.
type CodeBlock struct {
	Lang string
	Code string
}

// Title returns the first message truncated for display.
func Title(messages []history.ChatMessage) string {
	if len(messages) == 0 {
		return UntitledConversation
	}
	return utils.Truncate(messages[0].Content, titleLength)
}

// CodeBlocks extracts the fenced code blocks of text in order. Blocks without
// a language are labelled "text".
func CodeBlocks(text string) []CodeBlock {
	matches := codeBlockPattern.FindAllStringSubmatch(text, -1)
	blocks := make([]CodeBlock, 0, len(matches))
	for _, m := range matches {
		lang := m[1]
		if lang == "" {
			lang = "text"
		}
		blocks = append(blocks, CodeBlock{Lang: lang, Code: strings.TrimSpace(m[2])})
	}
	return blocks
}
