package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"familyhub_server/routes"
	"familyhub_server/services"
	"familyhub_server/socket"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize DynamoDB client and service
	log.Println("Initializing DynamoDB client...")
	dynamoClient := services.InitializeDynamoDBClient()
	dynamoService := &services.DynamoService{Client: dynamoClient}
	log.Println("DynamoDB client initialized.")

	// Initialize S3 client for chat media
	awsCfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(os.Getenv("AWS_REGION")))
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}
	s3Service := &services.S3Service{
		Client: s3.NewFromConfig(awsCfg),
		Bucket: os.Getenv("S3_BUCKET_NAME"),
	}

	// Initialize the change feed and services
	feed := services.NewChangeFeed()
	profileService := &services.UserProfileService{Dynamo: dynamoService}
	membershipService := &services.MembershipService{Dynamo: dynamoService, Profiles: profileService, Feed: feed}
	messageService := &services.MessageService{Dynamo: dynamoService, Profiles: profileService, Feed: feed}
	joinRequestService := &services.JoinRequestService{Dynamo: dynamoService, Members: membershipService, Profiles: profileService, Feed: feed}

	// Set up the server port
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("Using server port: %s\n", port)

	// Initialize the router
	r := mux.NewRouter()

	// Socket.IO server bridging change feed events into group rooms
	socketServer := socket.NewSocketServer(feed)
	go func() {
		if err := socketServer.Serve(); err != nil {
			log.Fatalf("Socket.IO serve error: %v", err)
		}
	}()
	defer socketServer.Close()
	r.Handle("/socket.io/", socketServer)

	// Register routes
	routes.RegisterRoutes(r)
	routes.RegisterGroupRoutes(r, membershipService)
	routes.RegisterChatRoutes(r, messageService)
	routes.RegisterJoinRequestRoutes(r, joinRequestService)
	routes.RegisterMediaRoutes(r, s3Service)

	// Add CORS middleware
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Adjust for specific domains if needed
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(r)

	// Start the HTTP server
	log.Printf("Starting server on port %s...\n", port)
	log.Fatal(http.ListenAndServe(":"+port, corsHandler))
}
