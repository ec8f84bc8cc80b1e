// ABOUTME: MCP tool handler implementations for the twin server
// ABOUTME: Tool failures are reported as error results, never as protocol errors
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/harper/twin/internal/service"
)

// Handlers contains the handler functions for all MCP tools
type Handlers struct {
	svc    *service.Service
	logger zerolog.Logger
}

// Chat handles the chat tool
func (h *Handlers) Chat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError("message argument is required and must be a string"), nil
	}

	resp, err := h.svc.Chat(ctx, service.ChatRequest{
		Message:        message,
		UserID:         request.GetString("user_id", ""),
		SessionID:      request.GetString("session_id", ""),
		ConversationID: request.GetString("conversation_id", ""),
		MaxIterations:  request.GetInt("max_iterations", 0),
	})
	if err != nil {
		h.logger.Warn().Err(err).Msg("chat tool failed")
		return mcp.NewToolResultError(fmt.Sprintf("chat failed: %v", err)), nil
	}

	return jsonResult(resp)
}

// RouteMessage handles the route_message tool
func (h *Handlers) RouteMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError("message argument is required and must be a string"), nil
	}

	resp, err := h.svc.Route(ctx, message)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("routing failed: %v", err)), nil
	}

	return jsonResult(resp)
}

// ListConversations handles the list_conversations tool
func (h *Handlers) ListConversations(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := request.GetString("user_id", service.DefaultUserID)
	limit := request.GetInt("limit", service.DefaultListLimit)

	convs, err := h.svc.ListConversations(ctx, userID, limit, 0)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list conversations: %v", err)), nil
	}

	return jsonResult(map[string]interface{}{
		"user_id":       userID,
		"conversations": convs,
		"count":         len(convs),
	})
}

// GetConversation handles the get_conversation tool
func (h *Handlers) GetConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError("conversation_id argument is required and must be a string"), nil
	}

	conv, err := h.svc.GetConversation(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get conversation: %v", err)), nil
	}

	return jsonResult(conv)
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(responseJSON)), nil
}
