// ABOUTME: MCP tool definitions and registration for the twin server
// ABOUTME: Exposes chat, routing and conversation history as MCP tools
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/harper/twin/internal/service"
)

// RegisterTools registers all MCP tools with the server
func RegisterTools(server *mcpserver.MCPServer, svc *service.Service, logger zerolog.Logger) *Handlers {
	handlers := &Handlers{
		svc:    svc,
		logger: logger,
	}

	// 1. chat - run a message through routing and handling
	server.AddTool(mcp.Tool{
		Name:        "chat",
		Description: "Send a message to the digital twin. The message is routed to the best specialist (professional, communication, knowledge, decision or general) and the answer is returned with routing details.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"message": map[string]interface{}{
					"type":        "string",
					"description": "User message",
				},
				"user_id": map[string]interface{}{
					"type":        "string",
					"description": "User identifier (default: default_user)",
				},
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session to continue; a new one is created when omitted",
				},
				"conversation_id": map[string]interface{}{
					"type":        "string",
					"description": "Stored conversation to continue",
				},
				"max_iterations": map[string]interface{}{
					"type":        "number",
					"description": "Iteration cap for this turn (1-20, default: 5)",
				},
			},
			Required: []string{"message"},
		},
	}, handlers.Chat)

	// 2. route_message - classify without answering
	server.AddTool(mcp.Tool{
		Name:        "route_message",
		Description: "Classify a message into a specialist label without generating an answer.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"message": map[string]interface{}{
					"type":        "string",
					"description": "Message to classify",
				},
			},
			Required: []string{"message"},
		},
	}, handlers.RouteMessage)

	// 3. list_conversations - stored conversations for a user
	server.AddTool(mcp.Tool{
		Name:        "list_conversations",
		Description: "List a user's stored conversations, most recently updated first.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": map[string]interface{}{
					"type":        "string",
					"description": "User identifier (default: default_user)",
				},
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of conversations (default: 50)",
					"default":     50,
				},
			},
		},
	}, handlers.ListConversations)

	// 4. get_conversation - one conversation with its messages
	server.AddTool(mcp.Tool{
		Name:        "get_conversation",
		Description: "Get a stored conversation with all of its messages, oldest first.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"conversation_id": map[string]interface{}{
					"type":        "string",
					"description": "Conversation ID",
				},
			},
			Required: []string{"conversation_id"},
		},
	}, handlers.GetConversation)

	return handlers
}
