package controllers

import (
	"encoding/json"
	"log"
	"net/http"

	"familyhub_server/models"
	"familyhub_server/services"
)

// MediaController issues presigned URLs for chat media blobs
type MediaController struct {
	S3Service *services.S3Service
}

// NewMediaController initializes the media controller
func NewMediaController(service *services.S3Service) *MediaController {
	return &MediaController{S3Service: service}
}

// GeneratePresignedURL generates a presigned URL for media uploads
func (c *MediaController) GeneratePresignedURL(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		FileName string `json:"fileName"`
		FileType string `json:"fileType"`
		FileSize int64  `json:"fileSize"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	if payload.FileName == "" || payload.FileType == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	if payload.FileSize > models.MaxImageBytes {
		http.Error(w, `{"error": "File exceeds the 5 MB limit"}`, http.StatusBadRequest)
		return
	}

	log.Printf("📤 Generating upload URL for %s (%s)", payload.FileName, payload.FileType)

	url, key, err := c.S3Service.GenerateUploadURL(r.Context(), payload.FileName, payload.FileType)
	if err != nil {
		log.Printf("❌ Error generating pre-signed URL: %v", err)
		http.Error(w, "Failed to generate pre-signed URL", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"url": url, "key": key})
}

// GetPresignedReadURL generates a presigned URL for reading stored media
func (c *MediaController) GetPresignedReadURL(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Key == "" {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	url, err := c.S3Service.GenerateReadURL(r.Context(), payload.Key)
	if err != nil {
		http.Error(w, "Failed to generate read pre-signed URL", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"url": url})
}
