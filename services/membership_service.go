package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"familyhub_server/models"
	"familyhub_server/utils"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// MembershipService owns family groups, memberships and role semantics
type MembershipService struct {
	Dynamo   DynamoAPI
	Profiles *UserProfileService
	Feed     *ChangeFeed
}

// CreateGroup creates a family group together with the founder's parent
// membership. The two writes run as one transaction: a group without its
// creator membership must never exist.
func (s *MembershipService) CreateGroup(ctx context.Context, name, creatorID string) (*models.FamilyGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("group name must not be empty: %w", models.ErrValidation)
	}
	if creatorID == "" {
		return nil, models.ErrNotAuthenticated
	}

	now := models.Timestamp()
	group := models.FamilyGroup{
		GroupID:   uuid.New().String(),
		Name:      name,
		CreatedBy: creatorID,
		CreatedAt: now,
	}
	membership := models.Membership{
		GroupID:      group.GroupID,
		UserID:       creatorID,
		MembershipID: uuid.New().String(),
		Role:         models.RoleParent,
		CanEdit:      true,
		CanView:      true,
		JoinedAt:     now,
	}

	err := s.Dynamo.TransactWrite(ctx, []TransactPut{
		{Table: models.FamilyGroupsTable, Item: group, Condition: "attribute_not_exists(groupId)"},
		{Table: models.MembershipsTable, Item: membership, Condition: "attribute_not_exists(userId)"},
	}, nil)
	if err != nil {
		log.Printf("❌ Failed to create group %q: %v", name, err)
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	log.Printf("✅ Group %q created by %s (groupId: %s)", name, creatorID, group.GroupID)
	return &group, nil
}

// ListGroupsForUser returns the union of groups the user founded and groups
// the user holds a membership in, deduplicated by id and sorted by createdAt
// descending
func (s *MembershipService) ListGroupsForUser(ctx context.Context, userID string) ([]models.FamilyGroup, error) {
	if userID == "" {
		return nil, models.ErrNotAuthenticated
	}

	byID := make(map[string]models.FamilyGroup)

	// Groups founded by the user
	items, err := s.Dynamo.QueryItemsWithIndex(ctx, models.FamilyGroupsTable, models.GroupCreatedByIndex,
		"createdBy = :uid",
		map[string]types.AttributeValue{":uid": &types.AttributeValueMemberS{Value: userID}}, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to query founded groups: %w", err)
	}
	var founded []models.FamilyGroup
	if err := attributevalue.UnmarshalListOfMaps(items, &founded); err != nil {
		return nil, fmt.Errorf("failed to parse founded groups: %w", err)
	}
	for _, g := range founded {
		byID[g.GroupID] = g
	}

	// Groups the user is a member of
	items, err = s.Dynamo.QueryItemsWithIndex(ctx, models.MembershipsTable, models.MembershipUserIndex,
		"userId = :uid",
		map[string]types.AttributeValue{":uid": &types.AttributeValueMemberS{Value: userID}}, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	var memberships []models.Membership
	if err := attributevalue.UnmarshalListOfMaps(items, &memberships); err != nil {
		return nil, fmt.Errorf("failed to parse memberships: %w", err)
	}

	var missing []map[string]types.AttributeValue
	for _, m := range memberships {
		if _, ok := byID[m.GroupID]; !ok {
			missing = append(missing, map[string]types.AttributeValue{
				"groupId": &types.AttributeValueMemberS{Value: m.GroupID},
			})
		}
	}
	if len(missing) > 0 {
		groupItems, err := s.Dynamo.BatchGetItems(ctx, models.FamilyGroupsTable, missing)
		if err != nil {
			return nil, fmt.Errorf("failed to batch fetch groups: %w", err)
		}
		var groups []models.FamilyGroup
		if err := attributevalue.UnmarshalListOfMaps(groupItems, &groups); err != nil {
			return nil, fmt.Errorf("failed to parse groups: %w", err)
		}
		for _, g := range groups {
			byID[g.GroupID] = g
		}
	}

	result := make([]models.FamilyGroup, 0, len(byID))
	for _, g := range byID {
		result = append(result, g)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt > result[j].CreatedAt })
	return result, nil
}

// GetGroup fetches a single group. ErrNotFound when the id doesn't resolve.
func (s *MembershipService) GetGroup(ctx context.Context, groupID string) (*models.FamilyGroup, error) {
	item, err := s.Dynamo.GetItem(ctx, models.FamilyGroupsTable, map[string]types.AttributeValue{
		"groupId": &types.AttributeValueMemberS{Value: groupID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch group: %w", err)
	}
	if item == nil {
		return nil, fmt.Errorf("group %s: %w", groupID, models.ErrNotFound)
	}

	var group models.FamilyGroup
	if err := attributevalue.UnmarshalMap(item, &group); err != nil {
		return nil, fmt.Errorf("failed to parse group: %w", err)
	}
	return &group, nil
}

// GetMembership fetches the membership for a (group, user) pair, or nil when
// the user is not a member
func (s *MembershipService) GetMembership(ctx context.Context, groupID, userID string) (*models.Membership, error) {
	item, err := s.Dynamo.GetItem(ctx, models.MembershipsTable, map[string]types.AttributeValue{
		"groupId": &types.AttributeValueMemberS{Value: groupID},
		"userId":  &types.AttributeValueMemberS{Value: userID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch membership: %w", err)
	}
	if item == nil {
		return nil, nil
	}

	var m models.Membership
	if err := attributevalue.UnmarshalMap(item, &m); err != nil {
		return nil, fmt.Errorf("failed to parse membership: %w", err)
	}
	return &m, nil
}

// IsAdmin reports whether the user may perform admin actions in the group:
// either the user founded the group or holds a parent membership
func (s *MembershipService) IsAdmin(ctx context.Context, groupID, userID string) (bool, error) {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return false, err
	}
	if group.CreatedBy == userID {
		return true, nil
	}

	m, err := s.GetMembership(ctx, groupID, userID)
	if err != nil {
		return false, err
	}
	return m != nil && m.Role == models.RoleParent, nil
}

// ListMembers returns the group's memberships enriched with display names.
// Names are resolved with a single batched profile lookup.
func (s *MembershipService) ListMembers(ctx context.Context, groupID string) ([]models.Membership, error) {
	items, err := s.Dynamo.QueryItems(ctx, models.MembershipsTable, "groupId = :gid",
		map[string]types.AttributeValue{":gid": &types.AttributeValueMemberS{Value: groupID}}, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}

	var members []models.Membership
	if err := attributevalue.UnmarshalListOfMaps(items, &members); err != nil {
		return nil, fmt.Errorf("failed to parse members: %w", err)
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	names, err := s.Profiles.GetDisplayNames(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range members {
		members[i].DisplayName = names[members[i].UserID]
	}
	return members, nil
}

// AddMemberDirect adds a member on behalf of an admin. ErrAlreadyMember when
// a membership for the (group, user) pair exists.
func (s *MembershipService) AddMemberDirect(ctx context.Context, groupID, userID, role, requesterID string) (*models.Membership, error) {
	switch role {
	case models.RoleParent, models.RoleChild, models.RoleViewer:
	default:
		return nil, fmt.Errorf("unknown role %q: %w", role, models.ErrValidation)
	}

	admin, err := s.IsAdmin(ctx, groupID, requesterID)
	if err != nil {
		return nil, err
	}
	if !admin {
		return nil, fmt.Errorf("adding members requires admin rights: %w", models.ErrNotAuthorized)
	}

	membership := models.Membership{
		GroupID:      groupID,
		UserID:       userID,
		MembershipID: uuid.New().String(),
		Role:         role,
		CanEdit:      role == models.RoleParent,
		CanView:      true,
		JoinedAt:     models.Timestamp(),
	}

	err = s.Dynamo.PutItemWithCondition(ctx, models.MembershipsTable, membership, "attribute_not_exists(userId)")
	if errors.Is(err, ErrConditionFailed) {
		return nil, fmt.Errorf("user %s in group %s: %w", userID, groupID, models.ErrAlreadyMember)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	log.Printf("✅ Added member %s to group %s as %s", userID, groupID, role)
	return &membership, nil
}

// RemoveMember removes a membership on behalf of an admin. Irreversible.
func (s *MembershipService) RemoveMember(ctx context.Context, membershipID, requesterID string) error {
	m, err := s.getByMembershipID(ctx, membershipID)
	if err != nil {
		return err
	}

	admin, err := s.IsAdmin(ctx, m.GroupID, requesterID)
	if err != nil {
		return err
	}
	if !admin {
		return fmt.Errorf("removing members requires admin rights: %w", models.ErrNotAuthorized)
	}

	err = s.Dynamo.DeleteItem(ctx, models.MembershipsTable, map[string]types.AttributeValue{
		"groupId": &types.AttributeValueMemberS{Value: m.GroupID},
		"userId":  &types.AttributeValueMemberS{Value: m.UserID},
	})
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	log.Printf("✅ Removed member %s from group %s", m.UserID, m.GroupID)
	return nil
}

// DeleteGroup deletes a group and cascades to its memberships, messages and
// join requests. Only the founder may delete; no dependent record with the
// group's id survives.
func (s *MembershipService) DeleteGroup(ctx context.Context, groupID, requesterID string) error {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group.CreatedBy != requesterID {
		return fmt.Errorf("only the founder may delete a group: %w", models.ErrNotAuthorized)
	}

	if err := s.cascadeDelete(ctx, groupID, models.MembershipsTable, "userId"); err != nil {
		return err
	}
	if err := s.cascadeDeleteMessages(ctx, groupID); err != nil {
		return err
	}
	if err := s.cascadeDelete(ctx, groupID, models.JoinRequestsTable, "requestedAt"); err != nil {
		return err
	}

	err = s.Dynamo.DeleteItem(ctx, models.FamilyGroupsTable, map[string]types.AttributeValue{
		"groupId": &types.AttributeValueMemberS{Value: groupID},
	})
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}

	log.Printf("✅ Deleted group %s and all dependent records", groupID)
	return nil
}

// cascadeDelete removes every record of the table whose partition key is the
// group, paging through a query and batch-deleting by (groupId, sortKey)
func (s *MembershipService) cascadeDelete(ctx context.Context, groupID, table, sortKey string) error {
	items, err := s.Dynamo.QueryItems(ctx, table, "groupId = :gid",
		map[string]types.AttributeValue{":gid": &types.AttributeValueMemberS{Value: groupID}}, nil, 0)
	if err != nil {
		return fmt.Errorf("failed to query %s for cascade: %w", table, err)
	}
	if len(items) == 0 {
		return nil
	}

	requests := make([]types.WriteRequest, 0, len(items))
	for _, item := range items {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{
				Key: map[string]types.AttributeValue{
					"groupId": &types.AttributeValueMemberS{Value: groupID},
					sortKey:   &types.AttributeValueMemberS{Value: utils.ExtractString(item, sortKey)},
				},
			},
		})
	}

	if err := s.Dynamo.BatchWriteItems(ctx, table, requests); err != nil {
		return fmt.Errorf("failed cascade delete on %s: %w", table, err)
	}
	return nil
}

// cascadeDeleteMessages is cascadeDelete for the messages table, additionally
// publishing a delete event per message so open channels observe the cascade
func (s *MembershipService) cascadeDeleteMessages(ctx context.Context, groupID string) error {
	items, err := s.Dynamo.QueryItems(ctx, models.ChatMessagesTable, "groupId = :gid",
		map[string]types.AttributeValue{":gid": &types.AttributeValueMemberS{Value: groupID}}, nil, 0)
	if err != nil {
		return fmt.Errorf("failed to query messages for cascade: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	var messages []models.ChatMessage
	if err := attributevalue.UnmarshalListOfMaps(items, &messages); err != nil {
		return fmt.Errorf("failed to parse messages for cascade: %w", err)
	}

	requests := make([]types.WriteRequest, 0, len(items))
	for _, item := range items {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{
				Key: map[string]types.AttributeValue{
					"groupId":   &types.AttributeValueMemberS{Value: groupID},
					"createdAt": &types.AttributeValueMemberS{Value: utils.ExtractString(item, "createdAt")},
				},
			},
		})
	}
	if err := s.Dynamo.BatchWriteItems(ctx, models.ChatMessagesTable, requests); err != nil {
		return fmt.Errorf("failed cascade delete on messages: %w", err)
	}

	if s.Feed != nil {
		for _, msg := range messages {
			s.Feed.Publish(Event{
				Table:   models.ChatMessagesTable,
				Type:    EventDelete,
				Record:  msg,
				Columns: map[string]string{"groupId": msg.GroupID},
			})
		}
	}
	return nil
}

func (s *MembershipService) getByMembershipID(ctx context.Context, membershipID string) (*models.Membership, error) {
	items, err := s.Dynamo.QueryItemsWithIndex(ctx, models.MembershipsTable, models.MembershipIDIndex,
		"membershipId = :mid",
		map[string]types.AttributeValue{":mid": &types.AttributeValueMemberS{Value: membershipID}}, nil, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve membership: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("membership %s: %w", membershipID, models.ErrNotFound)
	}

	var m models.Membership
	if err := attributevalue.UnmarshalMap(items[0], &m); err != nil {
		return nil, fmt.Errorf("failed to parse membership: %w", err)
	}
	return &m, nil
}
