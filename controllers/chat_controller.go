package controllers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"familyhub_server/models"
	"familyhub_server/services"
)

// ChatController handles group chat endpoints
type ChatController struct {
	MessageService *services.MessageService
}

// NewChatController initializes the chat controller
func NewChatController(service *services.MessageService) *ChatController {
	return &ChatController{MessageService: service}
}

// GetMessages - Fetch the latest messages for a group, oldest first
func (c *ChatController) GetMessages(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("groupId")
	limitStr := r.URL.Query().Get("limit")

	if groupID == "" {
		http.Error(w, `{"error": "groupId is required"}`, http.StatusBadRequest)
		return
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 50 // Default to 50 messages
	}

	log.Printf("🔍 Fetching messages for groupId: %s, Limit: %d", groupID, limit)

	messages, err := c.MessageService.FetchRecent(r.Context(), groupID, limit)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, messages)
}

// SendMessage - Append a message of any supported payload type
func (c *ChatController) SendMessage(w http.ResponseWriter, r *http.Request) {
	var request struct {
		GroupID      string               `json:"groupId"`
		SenderID     string               `json:"senderId"`
		Type         string               `json:"type"`
		Content      string               `json:"content"`
		File         *models.FileRef      `json:"file"`
		GroceryItems []models.GroceryItem `json:"groceryItems"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	if request.GroupID == "" || request.SenderID == "" {
		http.Error(w, `{"error": "Missing required fields: groupId, senderId"}`, http.StatusBadRequest)
		return
	}

	log.Printf("📩 Received %s message for group %s from %s", request.Type, request.GroupID, request.SenderID)

	var message *models.ChatMessage
	var err error
	switch request.Type {
	case models.MessageTypeText, "":
		message, err = c.MessageService.AppendText(r.Context(), request.GroupID, request.SenderID, request.Content)
	case models.MessageTypeImage:
		if request.File == nil {
			http.Error(w, `{"error": "Missing file payload"}`, http.StatusBadRequest)
			return
		}
		message, err = c.MessageService.AppendImage(r.Context(), request.GroupID, request.SenderID, *request.File)
	case models.MessageTypeVoice:
		if request.File == nil {
			http.Error(w, `{"error": "Missing file payload"}`, http.StatusBadRequest)
			return
		}
		message, err = c.MessageService.AppendVoice(r.Context(), request.GroupID, request.SenderID, *request.File)
	case models.MessageTypeGroceryList:
		message, err = c.MessageService.AppendGroceryList(r.Context(), request.GroupID, request.SenderID, request.GroceryItems)
	default:
		http.Error(w, `{"error": "Unknown message type"}`, http.StatusBadRequest)
		return
	}
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, message)
}

// DeleteMessage - Delete one of the sender's own messages
func (c *ChatController) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	var request struct {
		MessageID   string `json:"messageId"`
		RequesterID string `json:"requesterId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	if err := c.MessageService.DeleteMessage(r.Context(), request.MessageID, request.RequesterID); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Message deleted"})
}

// GetUnreadCount - Count messages after a watermark timestamp
func (c *ChatController) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("groupId")
	after := r.URL.Query().Get("after")
	if groupID == "" {
		http.Error(w, `{"error": "groupId is required"}`, http.StatusBadRequest)
		return
	}

	count, err := c.MessageService.CountSince(r.Context(), groupID, after)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"count": count})
}
