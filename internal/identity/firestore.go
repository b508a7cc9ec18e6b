package identity

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreRoles reads the "role" field of profiles/{userID}. Users without a
// profile document are ordinary users.
type FirestoreRoles struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreRoles(client *firestore.Client, collection string) *FirestoreRoles {
	return &FirestoreRoles{client: client, collection: collection}
}

func (f *FirestoreRoles) Role(ctx context.Context, userID string) (Role, error) {
	snap, err := f.client.Collection(f.collection).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return RoleUser, nil
		}
		return "", fmt.Errorf("failed to read profile: %w", err)
	}
	raw, err := snap.DataAt("role")
	if err != nil {
		slog.Debug("Profile has no role field; treating as user.", "userId", userID, "error", err)
		return RoleUser, nil
	}
	return roleFromProfile(userID, raw), nil
}

// roleFromProfile interprets a profile's "role" value. Anything other than the
// string "admin" is an ordinary user.
func roleFromProfile(userID string, raw interface{}) Role {
	s, ok := raw.(string)
	if !ok {
		slog.Debug("Profile role is not a string; treating as user.", "userId", userID, "type", fmt.Sprintf("%T", raw))
		return RoleUser
	}
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin
	case RoleUser:
		return RoleUser
	default:
		slog.Debug("Unknown profile role; treating as user.", "userId", userID, "role", s)
		return RoleUser
	}
}
