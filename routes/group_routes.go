package routes

import (
	"familyhub_server/controllers"
	"familyhub_server/services"

	"github.com/gorilla/mux"
)

// RegisterGroupRoutes sets up routes for group and membership operations under /api/groups
func RegisterGroupRoutes(r *mux.Router, membershipService *services.MembershipService) {
	controller := controllers.NewGroupController(membershipService)

	groupRouter := r.PathPrefix("/api/groups").Subrouter()

	groupRouter.HandleFunc("", controller.CreateGroup).Methods("POST")
	groupRouter.HandleFunc("", controller.GetGroups).Methods("GET")
	groupRouter.HandleFunc("", controller.DeleteGroup).Methods("DELETE")
	groupRouter.HandleFunc("/members", controller.GetMembers).Methods("GET")
	groupRouter.HandleFunc("/members", controller.AddMember).Methods("POST")
	groupRouter.HandleFunc("/members", controller.RemoveMember).Methods("DELETE")
}
