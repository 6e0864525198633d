package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"garagestock/internal/identity"
	"garagestock/internal/models"
	"garagestock/internal/repository"
)

type householdGateway struct {
	db *sql.DB
}

// NewHouseholdGateway creates the remote gateway for households and
// memberships.
func NewHouseholdGateway(db *sql.DB) repository.HouseholdGateway {
	return &householdGateway{db: db}
}

// GenerateInviteCode asks the remote side for a fresh, unique invite code.
// Codes are issued server-side so two households created at the same
// moment can never collide.
func (g *householdGateway) GenerateInviteCode(ctx context.Context) (string, error) {
	var code string
	if err := g.db.QueryRowContext(ctx, `SELECT generate_invite_code()`).Scan(&code); err != nil {
		return "", fmt.Errorf("failed to generate invite code: %w", err)
	}
	return code, nil
}

func (g *householdGateway) InsertHousehold(ctx context.Context, name, inviteCode string) (*models.Household, error) {
	var (
		hh                   models.Household
		createdAt, updatedAt time.Time
	)
	err := g.db.QueryRowContext(ctx, `
		INSERT INTO households (name, invite_code)
		VALUES ($1, $2)
		RETURNING id, name, invite_code, created_at, updated_at`,
		name, inviteCode,
	).Scan(&hh.ID, &hh.Name, &hh.InviteCode, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create household: %w", err)
	}

	hh.CreatedAt = identity.Format(createdAt)
	hh.UpdatedAt = identity.Format(updatedAt)
	return &hh, nil
}

func (g *householdGateway) GetByInviteCode(ctx context.Context, code string) (*models.Household, error) {
	var (
		hh                   models.Household
		createdAt, updatedAt time.Time
	)
	err := g.db.QueryRowContext(ctx, `
		SELECT id, name, invite_code, created_at, updated_at
		FROM households
		WHERE invite_code = $1`,
		code,
	).Scan(&hh.ID, &hh.Name, &hh.InviteCode, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up household by invite code: %w", err)
	}

	hh.CreatedAt = identity.Format(createdAt)
	hh.UpdatedAt = identity.Format(updatedAt)
	return &hh, nil
}

// AddMember registers the device in the household. Joining twice is a
// no-op at the row level, which is what makes join idempotent end to end.
func (g *householdGateway) AddMember(ctx context.Context, householdID, deviceID, deviceName string) error {
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO household_members (household_id, device_id, device_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (household_id, device_id) DO NOTHING`,
		householdID, deviceID, deviceName)
	if err != nil {
		return fmt.Errorf("failed to add household member: %w", err)
	}
	return nil
}

// RemoveMember deletes the device's membership row. Removing an absent
// member is not an error, so leaving twice is safe.
func (g *householdGateway) RemoveMember(ctx context.Context, householdID, deviceID string) error {
	_, err := g.db.ExecContext(ctx, `
		DELETE FROM household_members
		WHERE household_id = $1 AND device_id = $2`,
		householdID, deviceID)
	if err != nil {
		return fmt.Errorf("failed to remove household member: %w", err)
	}
	return nil
}

func (g *householdGateway) ListMembers(ctx context.Context, householdID string) ([]*models.HouseholdMember, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT id, household_id, device_id, device_name, joined_at, last_active
		FROM household_members
		WHERE household_id = $1
		ORDER BY joined_at ASC`,
		householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to list household members: %w", err)
	}
	defer rows.Close()

	var members []*models.HouseholdMember
	for rows.Next() {
		var (
			m                    models.HouseholdMember
			deviceName           sql.NullString
			joinedAt, lastActive time.Time
		)
		if err := rows.Scan(&m.ID, &m.HouseholdID, &m.DeviceID, &deviceName, &joinedAt, &lastActive); err != nil {
			return nil, fmt.Errorf("failed to scan household member: %w", err)
		}
		m.DeviceName = deviceName.String
		m.JoinedAt = identity.Format(joinedAt)
		m.LastActive = identity.Format(lastActive)
		members = append(members, &m)
	}
	return members, rows.Err()
}

func (g *householdGateway) FindMembership(ctx context.Context, deviceID string) (*models.Household, error) {
	var (
		hh                   models.Household
		createdAt, updatedAt time.Time
	)
	err := g.db.QueryRowContext(ctx, `
		SELECT h.id, h.name, h.invite_code, h.created_at, h.updated_at
		FROM households h
		INNER JOIN household_members m ON m.household_id = h.id
		WHERE m.device_id = $1`,
		deviceID,
	).Scan(&hh.ID, &hh.Name, &hh.InviteCode, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up membership: %w", err)
	}

	hh.CreatedAt = identity.Format(createdAt)
	hh.UpdatedAt = identity.Format(updatedAt)
	return &hh, nil
}
