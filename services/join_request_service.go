package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"familyhub_server/models"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// JoinRequestService runs the admin-gated join workflow:
// pending --approve--> approved (+ membership), pending --reject--> rejected.
// Reviewed requests are terminal.
type JoinRequestService struct {
	Dynamo   DynamoAPI
	Members  *MembershipService
	Profiles *UserProfileService
	Feed     *ChangeFeed
}

// Submit files a join request for a group. Existing members and users with a
// pending request for the same group are rejected.
func (s *JoinRequestService) Submit(ctx context.Context, groupID, userID string) (*models.JoinRequest, error) {
	if userID == "" {
		return nil, models.ErrNotAuthenticated
	}
	if _, err := s.Members.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}

	m, err := s.Members.GetMembership(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if m != nil {
		return nil, fmt.Errorf("user %s in group %s: %w", userID, groupID, models.ErrAlreadyMember)
	}

	pending, err := s.pendingForUser(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, fmt.Errorf("a join request for this group is already pending: %w", models.ErrValidation)
	}

	request := models.JoinRequest{
		GroupID:     groupID,
		RequestedAt: models.Timestamp(),
		RequestID:   uuid.New().String(),
		UserID:      userID,
		Status:      models.RequestStatusPending,
	}
	if err := s.Dynamo.PutItem(ctx, models.JoinRequestsTable, request); err != nil {
		return nil, fmt.Errorf("failed to store join request: %w", err)
	}

	s.publish(EventInsert, request)
	log.Printf("📬 Join request %s filed by %s for group %s", request.RequestID, userID, groupID)
	return &request, nil
}

// ListPending returns the group's pending requests newest-first, enriched
// with requester display names
func (s *JoinRequestService) ListPending(ctx context.Context, groupID string) ([]models.JoinRequest, error) {
	items, err := s.Dynamo.QueryItemsWithOptions(ctx, models.JoinRequestsTable, "groupId = :gid",
		map[string]types.AttributeValue{":gid": &types.AttributeValueMemberS{Value: groupID}},
		nil, 0, true)
	if err != nil {
		return nil, fmt.Errorf("failed to query join requests: %w", err)
	}

	var all []models.JoinRequest
	if err := attributevalue.UnmarshalListOfMaps(items, &all); err != nil {
		return nil, fmt.Errorf("failed to parse join requests: %w", err)
	}

	var pending []models.JoinRequest
	for _, r := range all {
		if r.Status == models.RequestStatusPending {
			pending = append(pending, r)
		}
	}

	ids := make([]string, 0, len(pending))
	for _, r := range pending {
		ids = append(ids, r.UserID)
	}
	names, err := s.Profiles.GetDisplayNames(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range pending {
		pending[i].RequesterName = names[pending[i].UserID]
	}
	return pending, nil
}

// Approve transitions a pending request to approved and creates the child
// membership. Status update and membership insert run as one transaction, so
// an approved request without a membership cannot exist.
func (s *JoinRequestService) Approve(ctx context.Context, requestID, adminID string) error {
	request, err := s.getByRequestID(ctx, requestID)
	if err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, request.GroupID, adminID); err != nil {
		return err
	}

	reviewedAt := models.Timestamp()
	membership := models.Membership{
		GroupID:      request.GroupID,
		UserID:       request.UserID,
		MembershipID: uuid.New().String(),
		Role:         models.RoleChild,
		CanEdit:      false,
		CanView:      true,
		JoinedAt:     reviewedAt,
	}

	err = s.Dynamo.TransactWrite(ctx,
		[]TransactPut{
			{Table: models.MembershipsTable, Item: membership, Condition: "attribute_not_exists(userId)"},
		},
		[]TransactUpdate{
			{
				Table: models.JoinRequestsTable,
				Key: map[string]types.AttributeValue{
					"groupId":     &types.AttributeValueMemberS{Value: request.GroupID},
					"requestedAt": &types.AttributeValueMemberS{Value: request.RequestedAt},
				},
				UpdateExpression: "SET #s = :status, reviewedAt = :reviewedAt, reviewedBy = :reviewedBy",
				Values: map[string]types.AttributeValue{
					":status":     &types.AttributeValueMemberS{Value: models.RequestStatusApproved},
					":reviewedAt": &types.AttributeValueMemberS{Value: reviewedAt},
					":reviewedBy": &types.AttributeValueMemberS{Value: adminID},
					":pending":    &types.AttributeValueMemberS{Value: models.RequestStatusPending},
				},
				Names:     map[string]string{"#s": "status"},
				Condition: "#s = :pending",
			},
		})
	if errors.Is(err, ErrConditionFailed) {
		return s.explainApproveConflict(ctx, request)
	}
	if err != nil {
		return fmt.Errorf("failed to approve join request: %w", err)
	}

	request.Status = models.RequestStatusApproved
	request.ReviewedAt = &reviewedAt
	request.ReviewedBy = &adminID
	s.publish(EventUpdate, *request)
	log.Printf("✅ Join request %s approved by %s; %s joined group %s as child",
		requestID, adminID, request.UserID, request.GroupID)
	return nil
}

// Reject transitions a pending request to rejected. No side effect beyond
// the status update.
func (s *JoinRequestService) Reject(ctx context.Context, requestID, adminID string) error {
	request, err := s.getByRequestID(ctx, requestID)
	if err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, request.GroupID, adminID); err != nil {
		return err
	}

	reviewedAt := models.Timestamp()
	_, err = s.Dynamo.UpdateItemWithCondition(ctx, models.JoinRequestsTable,
		"SET #s = :status, reviewedAt = :reviewedAt, reviewedBy = :reviewedBy",
		map[string]types.AttributeValue{
			"groupId":     &types.AttributeValueMemberS{Value: request.GroupID},
			"requestedAt": &types.AttributeValueMemberS{Value: request.RequestedAt},
		},
		map[string]types.AttributeValue{
			":status":     &types.AttributeValueMemberS{Value: models.RequestStatusRejected},
			":reviewedAt": &types.AttributeValueMemberS{Value: reviewedAt},
			":reviewedBy": &types.AttributeValueMemberS{Value: adminID},
			":pending":    &types.AttributeValueMemberS{Value: models.RequestStatusPending},
		},
		map[string]string{"#s": "status"},
		"#s = :pending")
	if errors.Is(err, ErrConditionFailed) {
		return fmt.Errorf("join request %s already reviewed: %w", requestID, models.ErrValidation)
	}
	if err != nil {
		return fmt.Errorf("failed to reject join request: %w", err)
	}

	request.Status = models.RequestStatusRejected
	request.ReviewedAt = &reviewedAt
	request.ReviewedBy = &adminID
	s.publish(EventUpdate, *request)
	log.Printf("🚫 Join request %s rejected by %s", requestID, adminID)
	return nil
}

func (s *JoinRequestService) requireAdmin(ctx context.Context, groupID, userID string) error {
	admin, err := s.Members.IsAdmin(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !admin {
		return fmt.Errorf("reviewing join requests requires admin rights: %w", models.ErrNotAuthorized)
	}
	return nil
}

// explainApproveConflict distinguishes which transaction condition failed:
// an already-reviewed request or an already-existing membership
func (s *JoinRequestService) explainApproveConflict(ctx context.Context, request *models.JoinRequest) error {
	current, err := s.getByRequestID(ctx, request.RequestID)
	if err == nil && current.Status != models.RequestStatusPending {
		return fmt.Errorf("join request %s already reviewed: %w", request.RequestID, models.ErrValidation)
	}
	return fmt.Errorf("user %s in group %s: %w", request.UserID, request.GroupID, models.ErrAlreadyMember)
}

func (s *JoinRequestService) pendingForUser(ctx context.Context, groupID, userID string) (*models.JoinRequest, error) {
	items, err := s.Dynamo.QueryItems(ctx, models.JoinRequestsTable, "groupId = :gid",
		map[string]types.AttributeValue{":gid": &types.AttributeValueMemberS{Value: groupID}}, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to query join requests: %w", err)
	}

	var requests []models.JoinRequest
	if err := attributevalue.UnmarshalListOfMaps(items, &requests); err != nil {
		return nil, fmt.Errorf("failed to parse join requests: %w", err)
	}
	for i := range requests {
		if requests[i].UserID == userID && requests[i].Status == models.RequestStatusPending {
			return &requests[i], nil
		}
	}
	return nil, nil
}

func (s *JoinRequestService) getByRequestID(ctx context.Context, requestID string) (*models.JoinRequest, error) {
	items, err := s.Dynamo.QueryItemsWithIndex(ctx, models.JoinRequestsTable, models.JoinRequestIDIndex,
		"requestId = :rid",
		map[string]types.AttributeValue{":rid": &types.AttributeValueMemberS{Value: requestID}}, nil, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve join request: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("join request %s: %w", requestID, models.ErrNotFound)
	}

	var request models.JoinRequest
	if err := attributevalue.UnmarshalMap(items[0], &request); err != nil {
		return nil, fmt.Errorf("failed to parse join request: %w", err)
	}
	return &request, nil
}

func (s *JoinRequestService) publish(eventType EventType, request models.JoinRequest) {
	if s.Feed == nil {
		return
	}
	s.Feed.Publish(Event{
		Table:   models.JoinRequestsTable,
		Type:    eventType,
		Record:  request,
		Columns: map[string]string{"groupId": request.GroupID},
	})
}
