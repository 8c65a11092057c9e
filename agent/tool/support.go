package tool

import (
	"context"
	"errors"

	contractx "github.com/tanpawarit/chative-support-team/agent/contract"
	"github.com/tanpawarit/chative-support-team/agent/records"
)

const (
	userNotFoundMessage = "User info not found! Ask the user for the data..."
	supportCallMessage  = "Successfully opened support call! Tell the user to wait for responsible team to get back to them..."
)

type SupportCallOutput struct {
	Message string `json:"message"`
	CallID  string `json:"call_id"`
}

// retrieveUserInfo looks the customer up by nickname, which is the
// conversation's user id.
func (g *Gateway) retrieveUserInfo(ctx context.Context, req contractx.ToolRequest) contractx.ToolResult {
	if g.deps.Records == nil {
		return errorResult("user records are not configured")
	}
	info, err := g.deps.Records.GetUserInfo(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return contractx.ToolResult{Result: userNotFoundMessage}
		}
		return errorResult("An error occurred while retrieving user info: " + err.Error())
	}
	return contractx.ToolResult{Result: info}
}

func (g *Gateway) newSupportCall(ctx context.Context, req contractx.ToolRequest) contractx.ToolResult {
	issue := stringArg(req.Args, "issue_description")
	if issue == "" {
		return errorResult("issue_description is required")
	}
	if g.deps.Records == nil {
		return errorResult("user records are not configured")
	}

	userID := req.UserID
	if info, err := g.deps.Records.GetUserInfo(ctx, req.UserID); err == nil {
		userID = info.ID
	}
	call, err := g.deps.Records.InsertSupportCall(ctx, records.SupportCall{
		UserID:           userID,
		Nickname:         req.UserID,
		IssueDescription: issue,
	})
	if err != nil {
		return errorResult("An error occurred while opening the call: " + err.Error())
	}
	return contractx.ToolResult{Result: SupportCallOutput{Message: supportCallMessage, CallID: call.ID}}
}
