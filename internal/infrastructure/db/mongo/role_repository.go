package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pawhaven/adoption-portal/internal/core/domain"
	"github.com/pawhaven/adoption-portal/internal/core/ports"
)

const (
	collectionRoles     = "roles"
	collectionUserRoles = "user_roles"
)

// RoleRepository stores roles and user_roles. The unique (user_id, role_id)
// index is what makes concurrent grants safe.
type RoleRepository struct {
	roles     *mongo.Collection
	userRoles *mongo.Collection
}

var _ ports.RoleRepository = (*RoleRepository)(nil)

func NewRoleRepository(db *mongo.Database) *RoleRepository {
	return &RoleRepository{
		roles:     db.Collection(collectionRoles),
		userRoles: db.Collection(collectionUserRoles),
	}
}

type mongoRole struct {
	ID   primitive.ObjectID `bson:"_id,omitempty"`
	Name string             `bson:"role_name"`
}

type mongoUserRole struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    string             `bson:"user_id"`
	RoleID    string             `bson:"role_id"`
	CreatedAt time.Time          `bson:"created_at"`
}

// HasRole reports whether userID holds the role called roleName. An unknown
// role is simply not held.
func (r *RoleRepository) HasRole(ctx context.Context, userID, roleName string) (bool, error) {
	role, err := r.FindRoleByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, domain.ErrRoleNotFound) {
			return false, nil
		}
		return false, err
	}
	return r.HasAssignment(ctx, userID, role.ID)
}

func (r *RoleRepository) FindRoleByName(ctx context.Context, name string) (*domain.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var mr mongoRole
	if err := r.roles.FindOne(ctx, bson.M{"role_name": name}).Decode(&mr); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRoleNotFound
		}
		return nil, fmt.Errorf("find role: %w", err)
	}
	return &domain.Role{ID: mr.ID.Hex(), Name: mr.Name}, nil
}

// EnsureRole returns the role called name, creating it when missing.
func (r *RoleRepository) EnsureRole(ctx context.Context, name string) (*domain.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	update := bson.M{"$setOnInsert": bson.M{"role_name": name}}

	var mr mongoRole
	if err := r.roles.FindOneAndUpdate(ctx, bson.M{"role_name": name}, update, opts).Decode(&mr); err != nil {
		return nil, fmt.Errorf("ensure role %q: %w", name, err)
	}
	return &domain.Role{ID: mr.ID.Hex(), Name: mr.Name}, nil
}

func (r *RoleRepository) HasAssignment(ctx context.Context, userID, roleID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	n, err := r.userRoles.CountDocuments(ctx,
		bson.M{"user_id": userID, "role_id": roleID},
		options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count user roles: %w", err)
	}
	return n > 0, nil
}

func (r *RoleRepository) InsertAssignment(ctx context.Context, userID, roleID string) (domain.GrantOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := mongoUserRole{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		RoleID:    roleID,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := r.userRoles.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.GrantAlreadyPresent, nil
		}
		return 0, fmt.Errorf("insert user role: %w", err)
	}
	return domain.GrantInserted, nil
}

// EnsureIndexes creates the unique indexes on roles and user_roles.
func (r *RoleRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := r.roles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "role_name", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("roles index: %w", err)
	}

	_, err := r.userRoles.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "role_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "role_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("user_roles index: %w", err)
	}
	return nil
}
