package tool

import (
	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
)

const (
	ToolRetrieveKnowledge = "retrieve_knowledge"
	ToolWebSearch         = "web_search"
	ToolRetrieveUserInfo  = "retrieve_user_info"
	ToolNewSupportCall    = "new_support_call"
	ToolGetAppointments   = "get_appointments"
	ToolAddAppointment    = "add_appointment"

	// ToolRequestHandoff never reaches the gateway. The specialist loop
	// turns it into a Handoff hint for the router.
	ToolRequestHandoff = "request_handoff"
)

func objectSchema(required []string, props map[string]any) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// SpecsForAgent returns the tool set a specialist may call.
func SpecsForAgent(agentType contractx.AgentType) []contractx.ToolSpec {
	switch agentType {
	case contractx.AgentTypeKnowledge:
		return []contractx.ToolSpec{
			{
				Name:        ToolRetrieveKnowledge,
				Description: "Retrieve relevant documents from the knowledge base based on the user's input.",
				Parameters: objectSchema([]string{"query"}, map[string]any{
					"query": stringProp("Search query for the knowledge base"),
				}),
			},
			{
				Name:        ToolWebSearch,
				Description: "Search the web. Use only when the knowledge base has nothing relevant.",
				Parameters: objectSchema([]string{"query"}, map[string]any{
					"query": stringProp("Web search query"),
					"max_results": map[string]any{
						"type":        "integer",
						"description": "Number of results, between 15 and 30",
					},
				}),
			},
		}
	case contractx.AgentTypeSupport:
		return []contractx.ToolSpec{
			{
				Name:        ToolRetrieveUserInfo,
				Description: "Retrieve the current customer's record from the database.",
				Parameters:  objectSchema(nil, map[string]any{}),
			},
			{
				Name:        ToolNewSupportCall,
				Description: "Register a new customer service call for human team assessment.",
				Parameters: objectSchema([]string{"issue_description"}, map[string]any{
					"issue_description": stringProp("Description of the issue"),
				}),
			},
			HandoffSpec(contractx.AgentTypeScheduling),
		}
	case contractx.AgentTypeScheduling:
		return []contractx.ToolSpec{
			{
				Name:        ToolGetAppointments,
				Description: "Return free and busy appointment times for one day.",
				Parameters: objectSchema(nil, map[string]any{
					"date": stringProp("Day in MM/DD/YYYY. Defaults to today."),
				}),
			},
			{
				Name:             ToolAddAppointment,
				Description:      "Book an identity check meeting. Requires human approval.",
				RequiresApproval: true,
				Parameters: objectSchema([]string{"date", "time"}, map[string]any{
					"date": stringProp("Day in MM/DD/YYYY"),
					"time": stringProp("Start time in HH:MM"),
				}),
			},
		}
	default:
		return nil
	}
}

// HandoffSpec lets a specialist ask the router for one of targets next.
func HandoffSpec(targets ...contractx.AgentType) contractx.ToolSpec {
	enum := make([]string, 0, len(targets))
	for _, t := range targets {
		enum = append(enum, string(t))
	}
	return contractx.ToolSpec{
		Name:        ToolRequestHandoff,
		Description: "Ask the supervisor to continue with another specialist after your reply.",
		Parameters: objectSchema([]string{"target"}, map[string]any{
			"target": map[string]any{"type": "string", "enum": enum},
			"reason": stringProp("Why the other specialist is needed"),
		}),
	}
}

// RequiresApproval reports whether tool is gated for agentType.
func RequiresApproval(agentType contractx.AgentType, tool string) bool {
	for _, spec := range SpecsForAgent(agentType) {
		if spec.Name == tool {
			return spec.RequiresApproval
		}
	}
	return false
}
