package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/crewchat/crewseal/directory"
)

// MembershipProvider resolves the member list of a crew. It is consulted
// when an encrypt call does not name explicit recipients.
type MembershipProvider interface {
	Members(ctx context.Context, crewID string) ([]string, error)
}

// StaticMembership is a fixed crew-to-members mapping. Useful for tests and
// single-process deployments where membership is configured up front.
type StaticMembership map[string][]string

var _ MembershipProvider = StaticMembership(nil)

func (m StaticMembership) Members(_ context.Context, crewID string) ([]string, error) {
	return append([]string(nil), m[crewID]...), nil
}

const recordTypeMember = "MEMBER"

type memberRecord struct {
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// DirectoryMembership stores crew membership in the directory service,
// alongside the key records it governs.
type DirectoryMembership struct {
	dir directory.Directory
}

var _ MembershipProvider = (*DirectoryMembership)(nil)

// NewDirectoryMembership creates a DirectoryMembership over dir.
func NewDirectoryMembership(dir directory.Directory) *DirectoryMembership {
	return &DirectoryMembership{dir: dir}
}

// AddMember records userID as a member of crewID. Idempotent.
func (m *DirectoryMembership) AddMember(ctx context.Context, crewID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(memberRecord{UserID: userID, JoinedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return m.dir.Put(crewID, recordTypeMember, userID, &directory.Record{Value: data})
}

// RemoveMember deletes the membership record. Removing a non-member is a no-op.
func (m *DirectoryMembership) RemoveMember(ctx context.Context, crewID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := m.dir.Delete(crewID, recordTypeMember, userID)
	if errors.Is(err, directory.ErrNotFound) {
		return nil
	}
	return err
}

// Members returns the crew's member IDs.
func (m *DirectoryMembership) Members(ctx context.Context, crewID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids, err := m.dir.List(crewID, recordTypeMember)
	if err != nil {
		return nil, fmt.Errorf("listing crew members: %w", err)
	}
	return ids, nil
}
