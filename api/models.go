package api

import (
	"time"

	"github.com/crewchat/crewseal/envelope"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// InitializeRequest enrolls a user into crew encryption.
type InitializeRequest struct {
	UserID string `json:"user_id"`
}

// InitializeResponse returns the bearer token naming the new identity.
type InitializeResponse struct {
	Token      string `json:"token"`
	KeyVersion uint64 `json:"key_version"`
	Algorithm  string `json:"algorithm"`
}

// RotateResponse reports the key version after a rotation.
type RotateResponse struct {
	KeyVersion uint64 `json:"key_version"`
}

// StatusResponse mirrors messaging.Status.
type StatusResponse struct {
	Initialized   bool      `json:"initialized"`
	ActiveVersion uint64    `json:"active_version,omitempty"`
	Algorithm     string    `json:"algorithm,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitzero"`
	RotationDue   bool      `json:"rotation_due,omitempty"`
}

// EncryptRequest carries one message to encrypt. Content is base64 in JSON.
type EncryptRequest struct {
	MessageType string   `json:"message_type"`
	Content     []byte   `json:"content"`
	Recipients  []string `json:"recipients,omitempty"`
}

// DecryptRequest carries an envelope to decrypt.
type DecryptRequest struct {
	Message    *envelope.EncryptedMessage `json:"message"`
	StepUpCode string                     `json:"step_up_code,omitempty"`
}

// DecryptResponse is the recovered plaintext message.
type DecryptResponse struct {
	MessageID   string    `json:"message_id"`
	SenderID    string    `json:"sender_id"`
	MessageType string    `json:"message_type"`
	CreatedAt   time.Time `json:"created_at"`
	Content     []byte    `json:"content"`
}

// DisableRequest carries the audit reason for disabling encryption.
type DisableRequest struct {
	Reason string `json:"reason,omitempty"`
}

// MemberRequest adds a user to a crew.
type MemberRequest struct {
	UserID string `json:"user_id"`
}

// MembersResponse lists a crew's members.
type MembersResponse struct {
	Members []string `json:"members"`
}

// StepUpEnrollResponse returns TOTP provisioning material.
type StepUpEnrollResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURL string `json:"provisioning_url"`
}
