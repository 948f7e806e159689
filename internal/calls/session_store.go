package calls

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Session correlates an AI voice-agent session with the telephony call that
// spawned it. Tool-call webhooks arrive carrying only the session ID, so this
// record is how they recover the caller's identity.
type Session struct {
	SessionID   string    `json:"session_id"`
	CallSID     string    `json:"call_sid"`
	CallerPhone string    `json:"caller_phone"`
	PatientID   uuid.UUID `json:"patient_id,omitempty"`
	Anonymous   bool      `json:"anonymous"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at,omitempty"`
	Outcome     string    `json:"outcome,omitempty"`
}

const (
	sessionKeyPrefix = "call:session:"
	callSIDKeyPrefix = "call:sid:"

	SessionStatusActive = "active"
	SessionStatusEnded  = "ended"
)

// SessionStore keeps active call sessions in Redis for the duration of a
// conversation plus a grace window.
type SessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSessionStore creates a session store backed by Redis.
func NewSessionStore(rdb *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionStore{rdb: rdb, ttl: ttl}
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

func callSIDKey(callSID string) string {
	return callSIDKeyPrefix + callSID
}

// Save persists the session under its session ID and indexes it by call SID
// so the telephony status callback can find it too.
func (s *SessionStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.SessionID == "" {
		return fmt.Errorf("call session: session_id required")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("call session: marshal: %w", err)
	}
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, sessionKey(sess.SessionID), data, s.ttl)
	if sess.CallSID != "" {
		pipe.Set(ctx, callSIDKey(sess.CallSID), sess.SessionID, s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Get retrieves a session by its AI session ID. An expired or unknown session
// returns (nil, nil).
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("call session: get: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("call session: unmarshal: %w", err)
	}
	return &sess, nil
}

// GetByCallSID resolves a session through the call SID index.
func (s *SessionStore) GetByCallSID(ctx context.Context, callSID string) (*Session, error) {
	sessionID, err := s.rdb.Get(ctx, callSIDKey(callSID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("call session: get by sid: %w", err)
	}
	return s.Get(ctx, sessionID)
}

// End marks the session ended with an outcome. Ending an unknown session is
// not an error; the call may simply have outlived the TTL.
func (s *SessionStore) End(ctx context.Context, sessionID, outcome string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	sess.Status = SessionStatusEnded
	sess.Outcome = outcome
	sess.EndedAt = time.Now().UTC()
	return s.Save(ctx, sess)
}

// Delete removes a session and its call SID index.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	keys := []string{sessionKey(sessionID)}
	if sess != nil && sess.CallSID != "" {
		keys = append(keys, callSIDKey(sess.CallSID))
	}
	return s.rdb.Del(ctx, keys...).Err()
}
