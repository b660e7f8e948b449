package controllers

import (
	"encoding/json"
	"log"
	"net/http"

	"familyhub_server/services"
)

// JoinRequestController handles the join request workflow endpoints
type JoinRequestController struct {
	JoinRequestService *services.JoinRequestService
}

// NewJoinRequestController initializes the join request controller
func NewJoinRequestController(service *services.JoinRequestService) *JoinRequestController {
	return &JoinRequestController{JoinRequestService: service}
}

// SubmitRequest - Submit a request to join a group
func (c *JoinRequestController) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var request struct {
		GroupID string `json:"groupId"`
		UserID  string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	log.Printf("📨 Join request from %s for group %s", request.UserID, request.GroupID)

	joinRequest, err := c.JoinRequestService.Submit(r.Context(), request.GroupID, request.UserID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, joinRequest)
}

// GetPendingRequests - Fetch a group's pending join requests, newest first
func (c *JoinRequestController) GetPendingRequests(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("groupId")
	if groupID == "" {
		http.Error(w, `{"error": "groupId is required"}`, http.StatusBadRequest)
		return
	}

	pending, err := c.JoinRequestService.ListPending(r.Context(), groupID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, pending)
}

// ApproveRequest - Approve a pending join request (admin only)
func (c *JoinRequestController) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	var request struct {
		RequestID string `json:"requestId"`
		AdminID   string `json:"adminId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	log.Printf("✅ Approving join request %s by admin %s", request.RequestID, request.AdminID)

	if err := c.JoinRequestService.Approve(r.Context(), request.RequestID, request.AdminID); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Request approved"})
}

// RejectRequest - Reject a pending join request (admin only)
func (c *JoinRequestController) RejectRequest(w http.ResponseWriter, r *http.Request) {
	var request struct {
		RequestID string `json:"requestId"`
		AdminID   string `json:"adminId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	log.Printf("🚫 Rejecting join request %s by admin %s", request.RequestID, request.AdminID)

	if err := c.JoinRequestService.Reject(r.Context(), request.RequestID, request.AdminID); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Request rejected"})
}
