package routes

import (
	"familyhub_server/controllers"
	"familyhub_server/services"

	"github.com/gorilla/mux"
)

// RegisterMediaRoutes sets up routes for presigned media URLs under /api/media
func RegisterMediaRoutes(r *mux.Router, s3Service *services.S3Service) {
	controller := controllers.NewMediaController(s3Service)

	mediaRouter := r.PathPrefix("/api/media").Subrouter()

	mediaRouter.HandleFunc("/upload-url", controller.GeneratePresignedURL).Methods("POST")
	mediaRouter.HandleFunc("/read-url", controller.GetPresignedReadURL).Methods("POST")
}
