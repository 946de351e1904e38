package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"admin-auth-service/internal/model"
	"admin-auth-service/internal/util"
)

// OtpRequestRepository is the durable store for pending verification
// requests. Rows never mutate except through the conditional consume and
// attempt statements.
type OtpRequestRepository struct {
	client *ScyllaClient
}

func NewOtpRequestRepository(client *ScyllaClient) *OtpRequestRepository {
	return &OtpRequestRepository{
		client: client,
	}
}

func (r *OtpRequestRepository) Create(ctx context.Context, req *model.VerificationRequest) error {
	query := r.client.Prepared.CreateOtpRequest.Bind(
		req.RequestToken, req.IdentityEncrypted, req.IdentityDEK, req.IdentityKeyID,
		req.CodeDigest, req.CodeSalt, req.HashAlgorithm,
		req.IssuedAt, req.ExpiresAt, req.Attempts, req.Consumed).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to create verification request",
			util.String("request_token", req.RequestToken),
			util.ErrorField(err))
		return fmt.Errorf("failed to create verification request: %w", err)
	}

	util.Info("Verification request created",
		util.String("request_token", req.RequestToken),
		util.Time("expires_at", req.ExpiresAt))

	return nil
}

func (r *OtpRequestRepository) Get(ctx context.Context, requestToken string) (*model.VerificationRequest, error) {
	req := &model.VerificationRequest{}

	query := r.client.Prepared.GetOtpRequest.Bind(requestToken).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&req.RequestToken, &req.IdentityEncrypted, &req.IdentityDEK, &req.IdentityKeyID,
		&req.CodeDigest, &req.CodeSalt, &req.HashAlgorithm,
		&req.IssuedAt, &req.ExpiresAt, &req.Attempts, &req.Consumed)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, model.ErrNotFound
		}
		util.Error("Failed to get verification request",
			util.String("request_token", requestToken),
			util.ErrorField(err))
		return nil, fmt.Errorf("failed to get verification request: %w", err)
	}

	return req, nil
}

// Consume flips the consumed flag with a lightweight transaction. The CAS
// result tells the caller whether this writer won the transition.
func (r *OtpRequestRepository) Consume(ctx context.Context, requestToken string) (bool, error) {
	var prevConsumed bool

	query := r.client.Prepared.ConsumeOtpRequest.Bind(requestToken).WithContext(ctx)
	applied, err := query.ScanCAS(&prevConsumed)
	if err != nil {
		util.Error("Failed to consume verification request",
			util.String("request_token", requestToken),
			util.ErrorField(err))
		return false, fmt.Errorf("failed to consume verification request: %w", err)
	}

	if applied {
		util.Info("Verification request consumed", util.String("request_token", requestToken))
	}

	return applied, nil
}

// IncrementAttempts bumps the attempt counter from a known prior value.
// A false return means a concurrent verify already moved the counter.
func (r *OtpRequestRepository) IncrementAttempts(ctx context.Context, requestToken string, from int) (bool, error) {
	var prevAttempts int

	query := r.client.Prepared.IncrementAttempts.Bind(from+1, requestToken, from).WithContext(ctx)
	applied, err := query.ScanCAS(&prevAttempts)
	if err != nil {
		util.Error("Failed to increment verification attempts",
			util.String("request_token", requestToken),
			util.ErrorField(err))
		return false, fmt.Errorf("failed to increment verification attempts: %w", err)
	}

	return applied, nil
}

// DeleteExpired removes requests whose validity window ended before the
// cutoff. The table stays small enough at admin-login volume for a full
// scan; deletes are batched.
func (r *OtpRequestRepository) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	iter := r.client.Prepared.ListOtpTokens.WithContext(ctx).Iter()

	var requestToken string
	var expiresAt time.Time
	deleted := 0

	batch := r.client.Session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	batchSize := 0

	for iter.Scan(&requestToken, &expiresAt) {
		if !expiresAt.Before(before) {
			continue
		}
		batch.Query(`DELETE FROM otp_requests WHERE request_token = ?`, requestToken)
		batchSize++

		if batchSize >= 100 {
			if err := r.client.Session.ExecuteBatch(batch); err != nil {
				iter.Close()
				return deleted, fmt.Errorf("failed to delete expired verification requests: %w", err)
			}
			deleted += batchSize
			batch = r.client.Session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
			batchSize = 0
		}
	}

	if batchSize > 0 {
		if err := r.client.Session.ExecuteBatch(batch); err != nil {
			iter.Close()
			return deleted, fmt.Errorf("failed to delete expired verification requests: %w", err)
		}
		deleted += batchSize
	}

	if err := iter.Close(); err != nil {
		return deleted, fmt.Errorf("failed to scan expired verification requests: %w", err)
	}

	if deleted > 0 {
		util.Info("Expired verification requests deleted", util.Int("deleted_count", deleted))
	}
	return deleted, nil
}
