package contentsync

import (
	"strings"

	"github.com/kalambet/podium/internal/generation"
	"github.com/kalambet/podium/internal/storage"
)

const systemPrompt = `You maintain a live information page for a presentation, written in Markdown.
Use headings, lists and emphasis so the page stays easy to scan.
Fold facts, links and corrections from the audience into the body of the page.
Answer audience questions only when you are certain of the answer. List every other question under an "Open questions" heading.
Collect praise and positive comments under a short "Audience voices" heading.
Return the complete updated page and nothing else.`

// BuildPrompt assembles the generation request for one pass. The current
// digest is included as the page to extend unless the record is being
// rebuilt. Only the given items are listed.
func BuildPrompt(p storage.Presentation, items []storage.Feedback, maxTokens int) generation.Request {
	var sb strings.Builder

	sb.WriteString("# Presentation\n")
	sb.WriteString("Title: ")
	sb.WriteString(p.Title)
	sb.WriteString("\n")
	if p.Description != "" {
		sb.WriteString("Description: ")
		sb.WriteString(p.Description)
		sb.WriteString("\n")
	}

	writeSection(&sb, "Context", p.Context)
	writeSection(&sb, "Main content", p.Content)
	if p.StaticInfo != nil {
		writeSection(&sb, "Background information", *p.StaticInfo)
	}

	if !p.RebuildPending && p.FeedbackDigest != nil && strings.TrimSpace(*p.FeedbackDigest) != "" {
		writeSection(&sb, "Current live page", *p.FeedbackDigest)
		sb.WriteString("\nExtend the current live page with the new feedback below. Keep everything it already says unless the feedback corrects it.\n")
	} else {
		sb.WriteString("\nWrite the live page from scratch using the feedback below.\n")
	}

	sb.WriteString("\n# New audience feedback\n")
	for _, f := range items {
		sb.WriteString("- ")
		if f.Participant != nil && *f.Participant != "" {
			sb.WriteString("[")
			sb.WriteString(*f.Participant)
			sb.WriteString("] ")
		}
		sb.WriteString(oneLine(f.Content))
		sb.WriteString("\n")
	}

	return generation.Request{
		System:    systemPrompt,
		Prompt:    sb.String(),
		MaxTokens: maxTokens,
	}
}

func writeSection(sb *strings.Builder, heading, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	sb.WriteString("\n## ")
	sb.WriteString(heading)
	sb.WriteString("\n")
	sb.WriteString(body)
	sb.WriteString("\n")
}

// oneLine keeps multi-line feedback inside its list item.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
