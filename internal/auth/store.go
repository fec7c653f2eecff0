package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrSessionNotFound is returned when a session key is unknown.
var ErrSessionNotFound = errors.New("session not found")

// SessionRecord is a signed-in user as stored between requests.
type SessionRecord struct {
	SessionKey   string    `firestore:"session_key"`
	RefreshToken string    `firestore:"refresh_token"`
	UserEmail    string    `firestore:"user_email"`
	UserName     string    `firestore:"user_name,omitempty"`
	CreatedAt    time.Time `firestore:"created_at"`
	LastUsed     time.Time `firestore:"last_used"`
}

// SessionStore persists sessions.
type SessionStore interface {
	Store(ctx context.Context, record *SessionRecord) error
	Get(ctx context.Context, sessionKey string) (*SessionRecord, error)
	UpdateLastUsed(ctx context.Context, sessionKey string) error
	Delete(ctx context.Context, sessionKey string) error
	Close() error
}

// FirestoreSessionStore keeps sessions in a Firestore collection.
type FirestoreSessionStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreSessionStore creates a new FirestoreSessionStore.
func NewFirestoreSessionStore(ctx context.Context, projectID, collection string) (*FirestoreSessionStore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return NewFirestoreSessionStoreWithClient(client, collection), nil
}

// NewFirestoreSessionStoreWithClient creates a store on an existing client.
func NewFirestoreSessionStoreWithClient(client *firestore.Client, collection string) *FirestoreSessionStore {
	return &FirestoreSessionStore{
		client:     client,
		collection: collection,
	}
}

// Close closes the Firestore client.
func (s *FirestoreSessionStore) Close() error {
	return s.client.Close()
}

// Store writes the record; the document ID is the session key.
func (s *FirestoreSessionStore) Store(ctx context.Context, record *SessionRecord) error {
	_, err := s.client.Collection(s.collection).Doc(record.SessionKey).Set(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Get retrieves a session record.
func (s *FirestoreSessionStore) Get(ctx context.Context, sessionKey string) (*SessionRecord, error) {
	doc, err := s.client.Collection(s.collection).Doc(sessionKey).Get(ctx)
	if err != nil {
		if isNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var record SessionRecord
	if err := doc.DataTo(&record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session record: %w", err)
	}
	return &record, nil
}

// UpdateLastUsed updates the last_used timestamp of a session.
func (s *FirestoreSessionStore) UpdateLastUsed(ctx context.Context, sessionKey string) error {
	_, err := s.client.Collection(s.collection).Doc(sessionKey).Update(ctx, []firestore.Update{
		{Path: "last_used", Value: time.Now()},
	})
	if err != nil {
		if isNotFoundError(err) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to update last_used: %w", err)
	}
	return nil
}

// Delete removes a session.
func (s *FirestoreSessionStore) Delete(ctx context.Context, sessionKey string) error {
	if _, err := s.client.Collection(s.collection).Doc(sessionKey).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func isNotFoundError(err error) bool {
	return status.Code(err) == codes.NotFound
}

var _ SessionStore = (*FirestoreSessionStore)(nil)
