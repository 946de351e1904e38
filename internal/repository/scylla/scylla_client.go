package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"

	"admin-auth-service/internal/config"
	"admin-auth-service/internal/util"
)

// PreparedStatements holds the statements the repositories actually run.
// The consume and attempt statements are lightweight transactions; their
// IF clauses are what make the verify path race-safe.
type PreparedStatements struct {
	CreateOtpRequest  *gocql.Query
	GetOtpRequest     *gocql.Query
	ConsumeOtpRequest *gocql.Query
	IncrementAttempts *gocql.Query
	ListOtpTokens     *gocql.Query
	DeleteOtpRequest  *gocql.Query

	CreateSession *gocql.Query
	GetSession    *gocql.Query
	DeleteSession *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if !cfg.IsDevelopment() {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 "/root/certs/ca.pem",
			CertPath:               "/root/certs/server.pem",
			KeyPath:                "/root/certs/server.key",
			EnableHostVerification: true,
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		util.Any("nodes", scyllaConfig.Nodes),
		util.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.CreateOtpRequest = s.Session.Query(`
		INSERT INTO otp_requests (
			request_token, identity_encrypted, identity_dek, identity_key_id,
			code_digest, code_salt, hash_algorithm,
			issued_at, expires_at, attempts, consumed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetOtpRequest = s.Session.Query(`
		SELECT request_token, identity_encrypted, identity_dek, identity_key_id,
			code_digest, code_salt, hash_algorithm,
			issued_at, expires_at, attempts, consumed
		FROM otp_requests WHERE request_token = ?`)

	prepared.ConsumeOtpRequest = s.Session.Query(`
		UPDATE otp_requests SET consumed = true
		WHERE request_token = ? IF consumed = false`)

	prepared.IncrementAttempts = s.Session.Query(`
		UPDATE otp_requests SET attempts = ?
		WHERE request_token = ? IF attempts = ?`)

	prepared.ListOtpTokens = s.Session.Query(`
		SELECT request_token, expires_at FROM otp_requests`)

	prepared.DeleteOtpRequest = s.Session.Query(`
		DELETE FROM otp_requests WHERE request_token = ?`)

	prepared.CreateSession = s.Session.Query(`
		INSERT INTO admin_sessions (session_token, issued_at, expires_at)
		VALUES (?, ?, ?)`)

	prepared.GetSession = s.Session.Query(`
		SELECT session_token, issued_at, expires_at
		FROM admin_sessions WHERE session_token = ?`)

	prepared.DeleteSession = s.Session.Query(`
		DELETE FROM admin_sessions WHERE session_token = ?`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created successfully")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}
	return nil
}

func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			lastErr = err
			if i < 2 {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}
