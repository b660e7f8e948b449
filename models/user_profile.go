package models

// UserProfile is the slice of the identity provider's profile record this
// subsystem reads. The Users table is owned by the auth layer; we only
// resolve display names from it.
type UserProfile struct {
	UserID  string `dynamodbav:"userId" json:"userId"` // Partition Key
	Name    string `dynamodbav:"name,omitempty" json:"name,omitempty"`
	EmailID string `dynamodbav:"emailId,omitempty" json:"emailId,omitempty"`
}

// UsersTable is the DynamoDB table name for user profiles
const UsersTable = "Users"
