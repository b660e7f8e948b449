package models

// JoinRequest represents a pending ask to join a family group, resolved by an admin
type JoinRequest struct {
	GroupID     string  `dynamodbav:"groupId" json:"groupId"`         // Partition Key
	RequestedAt string  `dynamodbav:"requestedAt" json:"requestedAt"` // Sort Key (submission timestamp)
	RequestID   string  `dynamodbav:"requestId" json:"requestId"`
	UserID      string  `dynamodbav:"userId" json:"userId"` // The requester
	Status      string  `dynamodbav:"status" json:"status"` // "pending", "approved", "rejected"
	ReviewedAt  *string `dynamodbav:"reviewedAt,omitempty" json:"reviewedAt,omitempty"`
	ReviewedBy  *string `dynamodbav:"reviewedBy,omitempty" json:"reviewedBy,omitempty"`

	RequesterName string `dynamodbav:"-" json:"requesterName,omitempty"` // Resolved from the Users table, not stored
}

// JoinRequestsTable is the DynamoDB table name for join requests
const JoinRequestsTable = "JoinRequests"

// JoinRequestIDIndex is the GSI for resolving a request by its ID
const JoinRequestIDIndex = "requestId-index"
