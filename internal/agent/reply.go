package agent

import "strings"

// Reply is the interpreted form of a model response. It is one of
// ToolRequest, FinalReport or EmptyReply.
type Reply interface {
	isReply()
}

// ToolRequest continues the loop with one tool call.
type ToolRequest struct {
	// Thought is all text in the reply, logged as pre-action reasoning.
	Thought string
	Call    ToolCall
	// Dropped counts additional calls in the same reply that were ignored.
	Dropped int
}

// FinalReport ends the session with Text as the terminal report.
type FinalReport struct {
	Text string
	// Thought holds backend-flagged reasoning that preceded the report.
	Thought string
}

// EmptyReply ends the session without a report: the reply had neither a
// tool call nor any text.
type EmptyReply struct{}

func (ToolRequest) isReply() {}
func (FinalReport) isReply() {}
func (EmptyReply) isReply()  {}

// Interpret classifies a response. A reply with any tool call is a
// ToolRequest for the first call; all its text becomes the thought. A reply
// without calls is always terminal: the last non-empty, non-thought text
// part is the report. When the only text is backend-flagged thinking, the
// last thought part is the report instead, so no model text is lost.
func Interpret(resp *Response) Reply {
	if resp == nil {
		return EmptyReply{}
	}

	var calls []*ToolCall
	var texts, thoughts []string
	report := ""
	for _, p := range resp.Parts {
		if p.Call != nil {
			calls = append(calls, p.Call)
		}
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		texts = append(texts, text)
		if p.Thought {
			thoughts = append(thoughts, text)
			continue
		}
		report = text
	}

	if len(calls) > 0 {
		return ToolRequest{
			Thought: strings.Join(texts, "\n"),
			Call:    *calls[0],
			Dropped: len(calls) - 1,
		}
	}

	if report == "" {
		if len(thoughts) == 0 {
			return EmptyReply{}
		}
		report = thoughts[len(thoughts)-1]
		thoughts = thoughts[:len(thoughts)-1]
	}
	return FinalReport{Text: report, Thought: strings.Join(thoughts, "\n")}
}
