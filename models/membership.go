package models

// Membership grants a user a role inside a family group.
// The (groupId, userId) pair is the table's primary key, so a user can never
// hold two memberships in the same group.
type Membership struct {
	GroupID      string `dynamodbav:"groupId" json:"groupId"` // Partition Key
	UserID       string `dynamodbav:"userId" json:"userId"`   // Sort Key
	MembershipID string `dynamodbav:"membershipId" json:"membershipId"`
	Role         string `dynamodbav:"role" json:"role"` // "parent", "child" or "viewer"
	CanEdit      bool   `dynamodbav:"canEdit" json:"canEdit"`
	CanView      bool   `dynamodbav:"canView" json:"canView"`
	JoinedAt     string `dynamodbav:"joinedAt" json:"joinedAt"`
	DisplayName  string `dynamodbav:"-" json:"displayName,omitempty"` // Resolved from the Users table, not stored
}

// MembershipsTable is the DynamoDB table name for group memberships
const MembershipsTable = "Memberships"

// GSI Index Names
const MembershipUserIndex = "userId-index"     // GSI for listing a user's memberships
const MembershipIDIndex = "membershipId-index" // GSI for resolving a membership by its ID
