package models

// FamilyGroup represents a family group stored in DynamoDB
type FamilyGroup struct {
	GroupID   string `dynamodbav:"groupId" json:"groupId"`     // Partition Key
	Name      string `dynamodbav:"name" json:"name"`           // Display name
	CreatedBy string `dynamodbav:"createdBy" json:"createdBy"` // Founder's user ID
	CreatedAt string `dynamodbav:"createdAt" json:"createdAt"`
}

// FamilyGroupsTable is the DynamoDB table name for family groups
const FamilyGroupsTable = "FamilyGroups"

// GSI Index Names
const GroupCreatedByIndex = "createdBy-index" // GSI for querying groups by founder
