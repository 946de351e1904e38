package scylla

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"

	"admin-auth-service/internal/model"
	"admin-auth-service/internal/util"
)

// SessionRepository is the durable store for issued admin sessions.
type SessionRepository struct {
	client *ScyllaClient
}

func NewSessionRepository(client *ScyllaClient) *SessionRepository {
	return &SessionRepository{
		client: client,
	}
}

func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	query := r.client.Prepared.CreateSession.Bind(
		session.SessionToken, session.IssuedAt, session.ExpiresAt).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to create session", util.ErrorField(err))
		return fmt.Errorf("failed to create session: %w", err)
	}

	util.Info("Session created", util.Time("expires_at", session.ExpiresAt))
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, sessionToken string) (*model.Session, error) {
	session := &model.Session{}

	query := r.client.Prepared.GetSession.Bind(sessionToken).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&session.SessionToken, &session.IssuedAt, &session.ExpiresAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, model.ErrNotFound
		}
		util.Error("Failed to get session", util.ErrorField(err))
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// Delete removes a session. Deleting a missing token is a no-op.
func (r *SessionRepository) Delete(ctx context.Context, sessionToken string) error {
	query := r.client.Prepared.DeleteSession.Bind(sessionToken).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to delete session", util.ErrorField(err))
		return fmt.Errorf("failed to delete session: %w", err)
	}

	util.Info("Session deleted")
	return nil
}
