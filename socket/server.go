package socket

import (
	"log"

	"familyhub_server/models"
	"familyhub_server/services"

	socketio "github.com/googollee/go-socket.io"
)

// NewSocketServer initializes a Socket.IO server whose rooms are group IDs.
// Clients join the room for the group they are viewing; the change feed
// bridge relays every store event into the matching room.
func NewSocketServer(feed *services.ChangeFeed) *socketio.Server {
	server := socketio.NewServer(nil)

	server.OnConnect("/", func(s socketio.Conn) error {
		log.Println("✅ Socket connected:", s.ID())
		return nil
	})

	server.OnEvent("/", "join", func(s socketio.Conn, groupID string) {
		if groupID == "" {
			log.Println("❌ Invalid groupId in join request")
			return
		}
		log.Printf("👥 Socket %s joined group %s", s.ID(), groupID)
		s.Join(groupID)
	})

	server.OnEvent("/", "leave", func(s socketio.Conn, groupID string) {
		log.Printf("👋 Socket %s left group %s", s.ID(), groupID)
		s.Leave(groupID)
	})

	server.OnError("/", func(s socketio.Conn, err error) {
		log.Println("❌ Socket error:", err)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Println("❌ Socket disconnected:", s.ID(), reason)
	})

	bridgeFeed(server, feed)
	return server
}

// bridgeFeed opens match-all channels on the message and join request
// tables and relays each event to the room named by its groupId
func bridgeFeed(server *socketio.Server, feed *services.ChangeFeed) {
	relay := func(event string) func(services.Event) {
		return func(e services.Event) {
			groupID := e.Columns["groupId"]
			if groupID == "" {
				return
			}
			server.BroadcastToRoom("/", groupID, event, e.Record)
		}
	}

	feed.Open(models.ChatMessagesTable,
		[]services.EventType{services.EventInsert, services.EventDelete},
		"", "",
		services.Handlers{
			OnInsert: relay("newMessage"),
			OnDelete: relay("messageDeleted"),
		})

	feed.Open(models.JoinRequestsTable,
		[]services.EventType{services.EventInsert, services.EventUpdate},
		"", "",
		services.Handlers{
			OnInsert: relay("joinRequestUpdated"),
			OnUpdate: relay("joinRequestUpdated"),
		})
}
