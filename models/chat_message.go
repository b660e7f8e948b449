package models

// FileRef points at the binary payload of an image or voice message. The URI
// is opaque to this subsystem: it may be an inline-encoded data URI or a key
// into blob storage.
type FileRef struct {
	URI      string `dynamodbav:"uri" json:"uri"`
	FileName string `dynamodbav:"fileName" json:"fileName"`
}

// GroceryItem is one entry of a shared grocery list message
type GroceryItem struct {
	Item     string `dynamodbav:"item" json:"item"`
	Quantity string `dynamodbav:"quantity" json:"quantity"`
	Category string `dynamodbav:"category" json:"category"`
}

// ChatMessage represents a group chat message stored in DynamoDB.
// Exactly one of Content, File or GroceryItems is populated, matching Type.
type ChatMessage struct {
	GroupID      string        `dynamodbav:"groupId" json:"groupId"`     // Partition Key
	CreatedAt    string        `dynamodbav:"createdAt" json:"createdAt"` // Sort Key
	MessageID    string        `dynamodbav:"messageId" json:"messageId"`
	SenderID     string        `dynamodbav:"senderId" json:"senderId"`
	Type         string        `dynamodbav:"type" json:"type"` // "text", "image", "voice", "grocery_list"
	Content      string        `dynamodbav:"content,omitempty" json:"content,omitempty"`
	File         *FileRef      `dynamodbav:"file,omitempty" json:"file,omitempty"`
	GroceryItems []GroceryItem `dynamodbav:"groceryItems,omitempty" json:"groceryItems,omitempty"`
	UpdatedAt    string        `dynamodbav:"updatedAt" json:"updatedAt"`

	SenderName string `dynamodbav:"-" json:"senderName,omitempty"` // Resolved from the Users table, not stored
}

// ChatMessagesTable is the DynamoDB table name for chat messages
const ChatMessagesTable = "ChatMessages"

// MessageIDIndex is the GSI for resolving a message by its ID
const MessageIDIndex = "messageId-index"
