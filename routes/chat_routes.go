package routes

import (
	"familyhub_server/controllers"
	"familyhub_server/services"

	"github.com/gorilla/mux"
)

// RegisterChatRoutes sets up routes for chat operations under /api/chat
func RegisterChatRoutes(r *mux.Router, messageService *services.MessageService) {
	controller := controllers.NewChatController(messageService)

	chatRouter := r.PathPrefix("/api/chat").Subrouter()

	chatRouter.HandleFunc("/message", controller.SendMessage).Methods("POST")
	chatRouter.HandleFunc("/message", controller.DeleteMessage).Methods("DELETE")
	chatRouter.HandleFunc("/messages", controller.GetMessages).Methods("GET")
	chatRouter.HandleFunc("/messages/unread-count", controller.GetUnreadCount).Methods("GET")
}
