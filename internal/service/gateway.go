package service

import (
	"context"

	"github.com/bigkaa/search-bridge/internal/searchplatform"
)

// Gateway — операции поисковой платформы, потребляемые сервисами.
// Реализуется *searchplatform.Client; в тестах заменяется фейком.
type Gateway interface {
	GetConnection(ctx context.Context) (*searchplatform.Connection, error)
	CreateConnection(ctx context.Context, name, description string) error
	GetSchema(ctx context.Context) (*searchplatform.Schema, error)
	UpdateSchema(ctx context.Context, schema *searchplatform.Schema) error

	GetGroup(ctx context.Context, groupID string) (*searchplatform.ExternalGroup, error)
	CreateGroup(ctx context.Context, group searchplatform.ExternalGroup) error
	DeleteGroup(ctx context.Context, groupID string) error
	AddGroupMember(ctx context.Context, groupID string, member searchplatform.GroupMember) error
	RemoveGroupMember(ctx context.Context, groupID, memberID string) error

	GetItem(ctx context.Context, itemID string) (*searchplatform.ExternalItem, error)
	UpsertItem(ctx context.Context, item *searchplatform.ExternalItem) error
	DeleteItem(ctx context.Context, itemID string) error
}
