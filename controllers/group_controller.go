package controllers

import (
	"encoding/json"
	"log"
	"net/http"

	"familyhub_server/services"
)

// GroupController handles family group and membership endpoints
type GroupController struct {
	MembershipService *services.MembershipService
}

// NewGroupController initializes the group controller
func NewGroupController(service *services.MembershipService) *GroupController {
	return &GroupController{MembershipService: service}
}

// CreateGroup - Create a family group with the caller as founding parent
func (c *GroupController) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Name   string `json:"name"`
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	log.Printf("🏠 Creating group %q for user %s", request.Name, request.UserID)

	group, err := c.MembershipService.CreateGroup(r.Context(), request.Name, request.UserID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, group)
}

// GetGroups - Fetch every group the user belongs to or created
func (c *GroupController) GetGroups(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, `{"error": "userId is required"}`, http.StatusBadRequest)
		return
	}

	groups, err := c.MembershipService.ListGroupsForUser(r.Context(), userID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, groups)
}

// GetMembers - Fetch a group's member list with display names
func (c *GroupController) GetMembers(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("groupId")
	if groupID == "" {
		http.Error(w, `{"error": "groupId is required"}`, http.StatusBadRequest)
		return
	}

	members, err := c.MembershipService.ListMembers(r.Context(), groupID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, members)
}

// AddMember - Directly add a member to a group (admin only)
func (c *GroupController) AddMember(w http.ResponseWriter, r *http.Request) {
	var request struct {
		GroupID     string `json:"groupId"`
		UserID      string `json:"userId"`
		Role        string `json:"role"`
		RequesterID string `json:"requesterId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	log.Printf("➕ Adding user %s to group %s as %s", request.UserID, request.GroupID, request.Role)

	membership, err := c.MembershipService.AddMemberDirect(r.Context(), request.GroupID, request.UserID, request.Role, request.RequesterID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, membership)
}

// RemoveMember - Remove a member from a group (admin only)
func (c *GroupController) RemoveMember(w http.ResponseWriter, r *http.Request) {
	var request struct {
		MembershipID string `json:"membershipId"`
		RequesterID  string `json:"requesterId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	if err := c.MembershipService.RemoveMember(r.Context(), request.MembershipID, request.RequesterID); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Member removed"})
}

// DeleteGroup - Delete a group and all of its data (founder only)
func (c *GroupController) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	var request struct {
		GroupID     string `json:"groupId"`
		RequesterID string `json:"requesterId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	log.Printf("🗑️ Deleting group %s requested by %s", request.GroupID, request.RequesterID)

	if err := c.MembershipService.DeleteGroup(r.Context(), request.GroupID, request.RequesterID); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Group deleted"})
}
