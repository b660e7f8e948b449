package services

import (
	"context"
	"fmt"
	"sort"

	"familyhub_server/models"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// UserProfileService resolves user IDs to display names. The Users table is
// owned by the identity layer; this service only reads it.
type UserProfileService struct {
	Dynamo DynamoAPI
}

// GetCurrentUser resolves the profile for the given user ID.
// ErrNotAuthenticated when no profile exists.
func (ups *UserProfileService) GetCurrentUser(ctx context.Context, userID string) (*models.UserProfile, error) {
	if userID == "" {
		return nil, models.ErrNotAuthenticated
	}

	key := map[string]types.AttributeValue{
		"userId": &types.AttributeValueMemberS{Value: userID},
	}
	item, err := ups.Dynamo.GetItem(ctx, models.UsersTable, key)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	if item == nil {
		return nil, models.ErrNotAuthenticated
	}

	var profile models.UserProfile
	if err := attributevalue.UnmarshalMap(item, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &profile, nil
}

// GetDisplayNames resolves a set of user IDs to display names with one
// batched lookup. IDs are deduplicated first so callers can pass them
// straight off a membership or message list. Unknown IDs are simply absent
// from the result.
func (ups *UserProfileService) GetDisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	distinct := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		if id != "" {
			distinct[id] = true
		}
	}
	if len(distinct) == 0 {
		return map[string]string{}, nil
	}

	ids := make([]string, 0, len(distinct))
	for id := range distinct {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	keys := make([]map[string]types.AttributeValue, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, map[string]types.AttributeValue{
			"userId": &types.AttributeValueMemberS{Value: id},
		})
	}

	items, err := ups.Dynamo.BatchGetItems(ctx, models.UsersTable, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to batch fetch profiles: %w", err)
	}

	var profiles []models.UserProfile
	if err := attributevalue.UnmarshalListOfMaps(items, &profiles); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profiles: %w", err)
	}

	names := make(map[string]string, len(profiles))
	for _, p := range profiles {
		names[p.UserID] = p.Name
	}
	return names, nil
}
