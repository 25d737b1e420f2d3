package perception

import (
	"fmt"
	"strings"

	"google.golang.org/genai"

	"ultron/internal/agent"
	"ultron/internal/tools"
)

// FunctionDeclarations converts registry tools to Gemini declarations.
func FunctionDeclarations(ts []*tools.Tool) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(ts))
	for _, t := range ts {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toolSchema(t.Schema),
		})
	}
	return decls
}

func toolSchema(s tools.ToolSchema) *genai.Schema {
	schema := &genai.Schema{Type: genai.TypeObject}
	if len(s.Properties) > 0 {
		schema.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			schema.Properties[name] = propertySchema(p)
		}
	}
	if len(s.Required) > 0 {
		schema.Required = append([]string(nil), s.Required...)
	}
	return schema
}

func propertySchema(p tools.Property) *genai.Schema {
	schema := &genai.Schema{
		Type:        schemaType(p.Type),
		Description: p.Description,
	}
	for _, e := range p.Enum {
		schema.Enum = append(schema.Enum, fmt.Sprint(e))
	}
	if schema.Type == genai.TypeArray {
		itemType := "string"
		if p.Items != nil && p.Items.Type != "" {
			itemType = p.Items.Type
		}
		schema.Items = &genai.Schema{Type: schemaType(itemType)}
	}
	return schema
}

func schemaType(t string) genai.Type {
	switch strings.ToLower(t) {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

// HistoryContents converts the session history to Gemini contents.
// Observations travel as function responses in user-role contents.
func HistoryContents(history []agent.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, t := range history {
		switch t.Role {
		case agent.RoleUser:
			contents = append(contents, genai.NewContentFromText(t.Text, genai.RoleUser))

		case agent.RoleModel:
			var parts []*genai.Part
			if t.Text != "" {
				parts = append(parts, genai.NewPartFromText(t.Text))
			}
			if t.Call != nil {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   t.Call.ID,
					Name: t.Call.Name,
					Args: t.Call.Args,
				}})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})

		case agent.RoleTool:
			response := map[string]any{}
			if t.Observation != nil {
				key := "output"
				if t.Observation.Failed {
					key = "error"
				}
				response[key] = t.Observation.Text
			}
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
					ID:       t.CallID,
					Name:     t.ToolName,
					Response: response,
				}}},
			})
		}
	}
	return contents
}

// blockedFinishReasons end a candidate without usable content.
var blockedFinishReasons = map[genai.FinishReason]bool{
	genai.FinishReasonSafety:            true,
	genai.FinishReasonBlocklist:         true,
	genai.FinishReasonProhibitedContent: true,
	genai.FinishReasonSPII:              true,
}

// checkBlocked maps an empty or blocked response to agent.ErrBlocked or
// agent.ErrNoCandidates.
func checkBlocked(resp *genai.GenerateContentResponse) error {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return fmt.Errorf("%w: prompt blocked (%s) %s", agent.ErrBlocked,
				resp.PromptFeedback.BlockReason, resp.PromptFeedback.BlockReasonMessage)
		}
		return agent.ErrNoCandidates
	}
	cand := resp.Candidates[0]
	empty := cand.Content == nil || len(cand.Content.Parts) == 0
	if empty && blockedFinishReasons[cand.FinishReason] {
		return fmt.Errorf("%w: finish reason %s", agent.ErrBlocked, cand.FinishReason)
	}
	if cand.Content == nil {
		return fmt.Errorf("%w: first candidate has no content", agent.ErrNoCandidates)
	}
	return nil
}

// AgentResponse converts the first candidate into agent parts.
func AgentResponse(resp *genai.GenerateContentResponse) (*agent.Response, error) {
	if err := checkBlocked(resp); err != nil {
		return nil, err
	}
	cand := resp.Candidates[0]

	out := &agent.Response{FinishReason: string(cand.FinishReason)}
	for _, part := range cand.Content.Parts {
		if part == nil {
			continue
		}
		if part.FunctionCall != nil {
			out.Parts = append(out.Parts, agent.Part{Call: &agent.ToolCall{
				ID:   part.FunctionCall.ID,
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			}})
			continue
		}
		if part.Text != "" {
			out.Parts = append(out.Parts, agent.Part{Text: part.Text, Thought: part.Thought})
		}
	}
	return out, nil
}
