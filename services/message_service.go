package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"familyhub_server/models"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// MessageService is the append-only store adapter for chat messages
type MessageService struct {
	Dynamo   DynamoAPI
	Profiles *UserProfileService
	Feed     *ChangeFeed
}

// FetchRecent fetches the latest messages for a group sorted by createdAt
// (latest first), then reverses the order before returning, so the latest
// message appears at the bottom in UI. Sender display names are resolved
// with one batched profile lookup.
func (s *MessageService) FetchRecent(ctx context.Context, groupID string, limit int) ([]models.ChatMessage, error) {
	items, err := s.Dynamo.QueryItemsWithOptions(ctx, models.ChatMessagesTable, "groupId = :gid",
		map[string]types.AttributeValue{":gid": &types.AttributeValueMemberS{Value: groupID}},
		nil, int32(limit), true)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	var messages []models.ChatMessage
	if err := attributevalue.UnmarshalListOfMaps(items, &messages); err != nil {
		return nil, fmt.Errorf("failed to parse messages: %w", err)
	}

	// Reverse so the newest message sits at the end
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.SenderID)
	}
	names, err := s.Profiles.GetDisplayNames(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		messages[i].SenderName = names[messages[i].SenderID]
	}
	return messages, nil
}

// CountSince counts the group's messages newer than the given watermark.
// An empty watermark counts every message (a never-viewed group is fully
// unread).
func (s *MessageService) CountSince(ctx context.Context, groupID, after string) (int, error) {
	keyCondition := "groupId = :gid"
	values := map[string]types.AttributeValue{
		":gid": &types.AttributeValueMemberS{Value: groupID},
	}
	if after != "" {
		keyCondition = "groupId = :gid AND createdAt > :after"
		values[":after"] = &types.AttributeValueMemberS{Value: after}
	}

	items, err := s.Dynamo.QueryItems(ctx, models.ChatMessagesTable, keyCondition, values, nil, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return len(items), nil
}

// AppendText appends a text message. Content must be non-empty after
// trimming.
func (s *MessageService) AppendText(ctx context.Context, groupID, senderID, content string) (*models.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("message text must not be empty: %w", models.ErrValidation)
	}
	msg := s.newMessage(groupID, senderID, models.MessageTypeText)
	msg.Content = content
	return s.append(ctx, msg)
}

// AppendImage appends an image message referencing an uploaded or inline
// blob
func (s *MessageService) AppendImage(ctx context.Context, groupID, senderID string, file models.FileRef) (*models.ChatMessage, error) {
	if file.URI == "" {
		return nil, fmt.Errorf("image uri must not be empty: %w", models.ErrValidation)
	}
	msg := s.newMessage(groupID, senderID, models.MessageTypeImage)
	msg.File = &file
	return s.append(ctx, msg)
}

// AppendVoice appends a voice message referencing an uploaded or inline blob
func (s *MessageService) AppendVoice(ctx context.Context, groupID, senderID string, file models.FileRef) (*models.ChatMessage, error) {
	if file.URI == "" {
		return nil, fmt.Errorf("voice uri must not be empty: %w", models.ErrValidation)
	}
	msg := s.newMessage(groupID, senderID, models.MessageTypeVoice)
	msg.File = &file
	return s.append(ctx, msg)
}

// AppendGroceryList appends a shared grocery list message
func (s *MessageService) AppendGroceryList(ctx context.Context, groupID, senderID string, items []models.GroceryItem) (*models.ChatMessage, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("grocery list must not be empty: %w", models.ErrValidation)
	}
	msg := s.newMessage(groupID, senderID, models.MessageTypeGroceryList)
	msg.GroceryItems = items
	return s.append(ctx, msg)
}

// DeleteMessage deletes a message. Only its sender may delete it.
func (s *MessageService) DeleteMessage(ctx context.Context, messageID, requesterID string) error {
	msg, err := s.getByMessageID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != requesterID {
		return fmt.Errorf("only the sender may delete a message: %w", models.ErrNotAuthorized)
	}

	err = s.Dynamo.DeleteItem(ctx, models.ChatMessagesTable, map[string]types.AttributeValue{
		"groupId":   &types.AttributeValueMemberS{Value: msg.GroupID},
		"createdAt": &types.AttributeValueMemberS{Value: msg.CreatedAt},
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	s.publish(EventDelete, *msg)
	log.Printf("🗑️ Deleted message %s in group %s", messageID, msg.GroupID)
	return nil
}

func (s *MessageService) newMessage(groupID, senderID, msgType string) models.ChatMessage {
	now := models.Timestamp()
	return models.ChatMessage{
		GroupID:   groupID,
		CreatedAt: now,
		MessageID: uuid.New().String(),
		SenderID:  senderID,
		Type:      msgType,
		UpdatedAt: now,
	}
}

// append is the single atomic insert all four payload kinds share
func (s *MessageService) append(ctx context.Context, msg models.ChatMessage) (*models.ChatMessage, error) {
	if err := s.Dynamo.PutItem(ctx, models.ChatMessagesTable, msg); err != nil {
		log.Printf("❌ Failed to store %s message for group %s: %v", msg.Type, msg.GroupID, err)
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	s.publish(EventInsert, msg)
	log.Printf("📩 Stored %s message %s in group %s", msg.Type, msg.MessageID, msg.GroupID)
	return &msg, nil
}

func (s *MessageService) publish(eventType EventType, msg models.ChatMessage) {
	if s.Feed == nil {
		return
	}
	s.Feed.Publish(Event{
		Table:   models.ChatMessagesTable,
		Type:    eventType,
		Record:  msg,
		Columns: map[string]string{"groupId": msg.GroupID},
	})
}

func (s *MessageService) getByMessageID(ctx context.Context, messageID string) (*models.ChatMessage, error) {
	items, err := s.Dynamo.QueryItemsWithIndex(ctx, models.ChatMessagesTable, models.MessageIDIndex,
		"messageId = :mid",
		map[string]types.AttributeValue{":mid": &types.AttributeValueMemberS{Value: messageID}}, nil, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve message: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("message %s: %w", messageID, models.ErrNotFound)
	}

	var msg models.ChatMessage
	if err := attributevalue.UnmarshalMap(items[0], &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}
