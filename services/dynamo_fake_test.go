package services

import (
	"context"
	"sort"
	"strings"
	"sync"

	"familyhub_server/models"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// tableSchema registers the primary key layout the fake enforces per table
var tableSchema = map[string]struct{ pk, sk string }{
	models.FamilyGroupsTable: {pk: "groupId"},
	models.MembershipsTable:  {pk: "groupId", sk: "userId"},
	models.JoinRequestsTable: {pk: "groupId", sk: "requestedAt"},
	models.ChatMessagesTable: {pk: "groupId", sk: "createdAt"},
	models.UsersTable:        {pk: "userId"},
}

// fakeDynamo is an in-memory DynamoAPI good enough for the expressions the
// services actually issue: equality key conditions with an optional sort-key
// range, attribute_not_exists conditions, and simple SET updates
type fakeDynamo struct {
	mu     sync.Mutex
	tables map[string][]map[string]types.AttributeValue
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{tables: make(map[string][]map[string]types.AttributeValue)}
}

func attrString(item map[string]types.AttributeValue, field string) string {
	if attr, ok := item[field]; ok {
		if v, ok := attr.(*types.AttributeValueMemberS); ok {
			return v.Value
		}
	}
	return ""
}

// sameKey reports whether two items share the table's full primary key
func sameKey(table string, a, b map[string]types.AttributeValue) bool {
	schema := tableSchema[table]
	if attrString(a, schema.pk) != attrString(b, schema.pk) {
		return false
	}
	if schema.sk == "" {
		return true
	}
	return attrString(a, schema.sk) == attrString(b, schema.sk)
}

func (f *fakeDynamo) findLocked(table string, key map[string]types.AttributeValue) int {
	for i, item := range f.tables[table] {
		if sameKey(table, item, key) {
			return i
		}
	}
	return -1
}

func (f *fakeDynamo) putLocked(table string, item map[string]types.AttributeValue) {
	if i := f.findLocked(table, item); i >= 0 {
		f.tables[table][i] = item
		return
	}
	f.tables[table] = append(f.tables[table], item)
}

func (f *fakeDynamo) PutItem(ctx context.Context, tableName string, item interface{}) error {
	marshaled, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putLocked(tableName, marshaled)
	return nil
}

func (f *fakeDynamo) PutItemWithCondition(ctx context.Context, tableName string, item interface{}, condition string) error {
	marshaled, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkConditionLocked(tableName, marshaled, condition, nil, nil); err != nil {
		return err
	}
	f.putLocked(tableName, marshaled)
	return nil
}

// checkConditionLocked evaluates a ConditionExpression against the item
// currently stored under the same key. Supported forms:
// attribute_not_exists(attr) and #name = :value.
func (f *fakeDynamo) checkConditionLocked(table string, key map[string]types.AttributeValue, condition string, values map[string]types.AttributeValue, names map[string]string) error {
	if condition == "" {
		return nil
	}
	i := f.findLocked(table, key)

	if strings.HasPrefix(condition, "attribute_not_exists(") {
		attr := strings.TrimSuffix(strings.TrimPrefix(condition, "attribute_not_exists("), ")")
		if i >= 0 {
			if _, ok := f.tables[table][i][attr]; ok {
				return ErrConditionFailed
			}
		}
		return nil
	}

	// equality: "#s = :pending" style
	parts := strings.SplitN(condition, " = ", 2)
	if len(parts) != 2 {
		return ErrConditionFailed
	}
	attr := parts[0]
	if resolved, ok := names[attr]; ok {
		attr = resolved
	}
	if i < 0 {
		return ErrConditionFailed
	}
	want := attrString(map[string]types.AttributeValue{"v": values[parts[1]]}, "v")
	if attrString(f.tables[table][i], attr) != want {
		return ErrConditionFailed
	}
	return nil
}

func (f *fakeDynamo) GetItem(ctx context.Context, tableName string, key map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.findLocked(tableName, key); i >= 0 {
		return copyItem(f.tables[tableName][i]), nil
	}
	return nil, nil
}

// queryFilter is one parsed clause of a key condition expression
type queryFilter struct {
	attr  string
	op    string // "=" or ">"
	value string
}

func parseKeyCondition(keyCondition string, values map[string]types.AttributeValue) []queryFilter {
	var filters []queryFilter
	for _, clause := range strings.Split(keyCondition, " AND ") {
		for _, op := range []string{" > ", " = "} {
			if parts := strings.SplitN(clause, op, 2); len(parts) == 2 {
				filters = append(filters, queryFilter{
					attr:  strings.TrimSpace(parts[0]),
					op:    strings.TrimSpace(op),
					value: attrString(map[string]types.AttributeValue{"v": values[strings.TrimSpace(parts[1])]}, "v"),
				})
				break
			}
		}
	}
	return filters
}

func (f *fakeDynamo) query(tableName, keyCondition string, values map[string]types.AttributeValue, limit int32, latestFirst bool) []map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()

	filters := parseKeyCondition(keyCondition, values)
	var matched []map[string]types.AttributeValue
	for _, item := range f.tables[tableName] {
		ok := true
		for _, flt := range filters {
			got := attrString(item, flt.attr)
			switch flt.op {
			case "=":
				ok = ok && got == flt.value
			case ">":
				ok = ok && got > flt.value
			}
		}
		if ok {
			matched = append(matched, copyItem(item))
		}
	}

	if schema := tableSchema[tableName]; schema.sk != "" {
		sort.Slice(matched, func(i, j int) bool {
			less := attrString(matched[i], schema.sk) < attrString(matched[j], schema.sk)
			if latestFirst {
				return !less
			}
			return less
		})
	}
	if limit > 0 && int32(len(matched)) > limit {
		matched = matched[:limit]
	}
	return matched
}

func (f *fakeDynamo) QueryItems(ctx context.Context, tableName, keyCondition string, values map[string]types.AttributeValue, names map[string]string, limit int32) ([]map[string]types.AttributeValue, error) {
	return f.query(tableName, keyCondition, values, limit, false), nil
}

func (f *fakeDynamo) QueryItemsWithIndex(ctx context.Context, tableName, indexName, keyCondition string, values map[string]types.AttributeValue, names map[string]string, limit int32) ([]map[string]types.AttributeValue, error) {
	return f.query(tableName, keyCondition, values, limit, false), nil
}

func (f *fakeDynamo) QueryItemsWithOptions(ctx context.Context, tableName, keyCondition string, values map[string]types.AttributeValue, names map[string]string, limit int32, latestFirst bool) ([]map[string]types.AttributeValue, error) {
	return f.query(tableName, keyCondition, values, limit, latestFirst), nil
}

func (f *fakeDynamo) UpdateItemWithCondition(ctx context.Context, tableName, updateExpression string, key map[string]types.AttributeValue, values map[string]types.AttributeValue, names map[string]string, condition string) (map[string]types.AttributeValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkConditionLocked(tableName, key, condition, values, names); err != nil {
		return nil, err
	}
	i := f.findLocked(tableName, key)
	if i < 0 {
		return nil, ErrConditionFailed
	}
	applySet(f.tables[tableName][i], updateExpression, values, names)
	return copyItem(f.tables[tableName][i]), nil
}

// applySet applies a "SET a = :v, b = :v2" update expression in place
func applySet(item map[string]types.AttributeValue, updateExpression string, values map[string]types.AttributeValue, names map[string]string) {
	expr := strings.TrimPrefix(updateExpression, "SET ")
	for _, assignment := range strings.Split(expr, ",") {
		parts := strings.SplitN(strings.TrimSpace(assignment), " = ", 2)
		if len(parts) != 2 {
			continue
		}
		attr := parts[0]
		if resolved, ok := names[attr]; ok {
			attr = resolved
		}
		item[attr] = values[parts[1]]
	}
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, tableName string, key map[string]types.AttributeValue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.findLocked(tableName, key); i >= 0 {
		f.tables[tableName] = append(f.tables[tableName][:i], f.tables[tableName][i+1:]...)
	}
	return nil
}

func (f *fakeDynamo) BatchGetItems(ctx context.Context, tableName string, keys []map[string]types.AttributeValue) ([]map[string]types.AttributeValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var results []map[string]types.AttributeValue
	for _, key := range keys {
		if i := f.findLocked(tableName, key); i >= 0 {
			results = append(results, copyItem(f.tables[tableName][i]))
		}
	}
	return results, nil
}

func (f *fakeDynamo) BatchWriteItems(ctx context.Context, tableName string, writeRequests []types.WriteRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range writeRequests {
		if req.DeleteRequest != nil {
			if i := f.findLocked(tableName, req.DeleteRequest.Key); i >= 0 {
				f.tables[tableName] = append(f.tables[tableName][:i], f.tables[tableName][i+1:]...)
			}
		}
		if req.PutRequest != nil {
			f.putLocked(tableName, req.PutRequest.Item)
		}
	}
	return nil
}

// TransactWrite checks every condition against the current state before
// applying anything, so a single rejected condition leaves the store
// untouched
func (f *fakeDynamo) TransactWrite(ctx context.Context, puts []TransactPut, updates []TransactUpdate) error {
	marshaled := make([]map[string]types.AttributeValue, len(puts))
	for i, p := range puts {
		m, err := attributevalue.MarshalMap(p.Item)
		if err != nil {
			return err
		}
		marshaled[i] = m
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for i, p := range puts {
		if err := f.checkConditionLocked(p.Table, marshaled[i], p.Condition, nil, nil); err != nil {
			return err
		}
	}
	for _, u := range updates {
		if err := f.checkConditionLocked(u.Table, u.Key, u.Condition, u.Values, u.Names); err != nil {
			return err
		}
		if f.findLocked(u.Table, u.Key) < 0 {
			return ErrConditionFailed
		}
	}

	for i, p := range puts {
		f.putLocked(p.Table, marshaled[i])
	}
	for _, u := range updates {
		idx := f.findLocked(u.Table, u.Key)
		applySet(f.tables[u.Table][idx], u.UpdateExpression, u.Values, u.Names)
	}
	return nil
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

// testEnv wires the services against the fake store with a handful of
// seeded user profiles
type testEnv struct {
	dynamo   *fakeDynamo
	feed     *ChangeFeed
	profiles *UserProfileService
	members  *MembershipService
	messages *MessageService
	requests *JoinRequestService
}

func newTestEnv() *testEnv {
	dynamo := newFakeDynamo()
	feed := NewChangeFeed()
	profiles := &UserProfileService{Dynamo: dynamo}
	members := &MembershipService{Dynamo: dynamo, Profiles: profiles, Feed: feed}
	messages := &MessageService{Dynamo: dynamo, Profiles: profiles, Feed: feed}
	requests := &JoinRequestService{Dynamo: dynamo, Members: members, Profiles: profiles, Feed: feed}

	seed := []models.UserProfile{
		{UserID: "alice", Name: "Alice", EmailID: "alice@example.com"},
		{UserID: "bob", Name: "Bob", EmailID: "bob@example.com"},
		{UserID: "carol", Name: "Carol", EmailID: "carol@example.com"},
		{UserID: "dave", Name: "Dave", EmailID: "dave@example.com"},
	}
	for _, p := range seed {
		_ = dynamo.PutItem(context.Background(), models.UsersTable, p)
	}

	return &testEnv{
		dynamo:   dynamo,
		feed:     feed,
		profiles: profiles,
		members:  members,
		messages: messages,
		requests: requests,
	}
}
