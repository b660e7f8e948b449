package routes

import (
	"familyhub_server/controllers"
	"familyhub_server/services"

	"github.com/gorilla/mux"
)

// RegisterJoinRequestRoutes sets up routes for the join workflow under /api/join-requests
func RegisterJoinRequestRoutes(r *mux.Router, joinRequestService *services.JoinRequestService) {
	controller := controllers.NewJoinRequestController(joinRequestService)

	requestRouter := r.PathPrefix("/api/join-requests").Subrouter()

	requestRouter.HandleFunc("", controller.SubmitRequest).Methods("POST")
	requestRouter.HandleFunc("/pending", controller.GetPendingRequests).Methods("GET")
	requestRouter.HandleFunc("/approve", controller.ApproveRequest).Methods("POST")
	requestRouter.HandleFunc("/reject", controller.RejectRequest).Methods("POST")
}
