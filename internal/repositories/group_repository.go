package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chatline/internal/models"
)

var (
	ErrGroupNotFound   = errors.New("group not found")
	ErrVersionConflict = errors.New("group was modified concurrently")
)

// GroupRepository abstracts group persistence. SaveGroup only succeeds when
// the stored version still equals group.Version.
type GroupRepository interface {
	CreateGroup(ctx context.Context, group models.Group) (models.Group, error)
	GetGroup(ctx context.Context, groupID int) (models.Group, error)
	SaveGroup(ctx context.Context, group models.Group) (models.Group, error)
	DeleteGroup(ctx context.Context, groupID, expectedVersion int) error
	ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error)
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

const groupColumns = `id, name, description, admin_id, avatar_url, version, created_at, updated_at`

// CreateGroup inserts the group and its members atomically.
func (r *GroupRepo) CreateGroup(ctx context.Context, group models.Group) (created models.Group, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Group{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	created = group.Clone()
	if err = tx.QueryRowxContext(ctx, `INSERT INTO groups (name, description, admin_id, avatar_url) VALUES ($1, $2, $3, $4)
        RETURNING id, version, created_at, updated_at`, group.Name, group.Description, group.AdminID, group.AvatarURL).
		Scan(&created.ID, &created.Version, &created.CreatedAt, &created.UpdatedAt); err != nil {
		return models.Group{}, err
	}
	if err = insertMembers(ctx, tx, created.ID, created.MemberIDs); err != nil {
		return models.Group{}, err
	}
	if err = tx.Commit(); err != nil {
		return models.Group{}, err
	}
	return created, nil
}

// GetGroup loads a group with its members in join order.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID int) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `SELECT `+groupColumns+` FROM groups WHERE id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	if err != nil {
		return models.Group{}, err
	}
	if err := r.db.SelectContext(ctx, &group.MemberIDs, `SELECT user_id FROM group_members WHERE group_id=$1 ORDER BY position ASC`, groupID); err != nil {
		return models.Group{}, err
	}
	return group, nil
}

// SaveGroup writes the group if nobody else saved it since it was loaded.
func (r *GroupRepo) SaveGroup(ctx context.Context, group models.Group) (saved models.Group, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Group{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	saved = group.Clone()
	err = tx.QueryRowxContext(ctx, `UPDATE groups SET name=$1, description=$2, admin_id=$3, avatar_url=$4,
        version = version + 1, updated_at = NOW()
        WHERE id=$5 AND version=$6 RETURNING version, updated_at`,
		group.Name, group.Description, group.AdminID, group.AvatarURL, group.ID, group.Version).
		Scan(&saved.Version, &saved.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if qerr := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM groups WHERE id=$1)`, group.ID); qerr != nil {
			return models.Group{}, qerr
		}
		if !exists {
			err = ErrGroupNotFound
		} else {
			err = ErrVersionConflict
		}
		return models.Group{}, err
	}
	if err != nil {
		return models.Group{}, err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id=$1`, group.ID); err != nil {
		return models.Group{}, err
	}
	if err = insertMembers(ctx, tx, group.ID, group.MemberIDs); err != nil {
		return models.Group{}, err
	}
	if err = tx.Commit(); err != nil {
		return models.Group{}, err
	}
	return saved, nil
}

// DeleteGroup removes the group together with all of its messages, provided
// the stored version still equals expectedVersion.
func (r *GroupRepo) DeleteGroup(ctx context.Context, groupID, expectedVersion int) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM groups WHERE id=$1 AND version=$2`, groupID, expectedVersion)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		var exists bool
		if err = tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM groups WHERE id=$1)`, groupID); err != nil {
			return err
		}
		if exists {
			err = ErrVersionConflict
		} else {
			err = ErrGroupNotFound
		}
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE group_id=$1`, groupID); err != nil {
		return err
	}
	return tx.Commit()
}

// ListGroupsForUser returns groups that include the user, newest first.
func (r *GroupRepo) ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.SelectContext(ctx, &groups, `SELECT g.id, g.name, g.description, g.admin_id, g.avatar_url, g.version, g.created_at, g.updated_at
        FROM groups g INNER JOIN group_members gm ON gm.group_id = g.id
        WHERE gm.user_id=$1 ORDER BY g.created_at DESC`, userID)
	if err != nil || len(groups) == 0 {
		return groups, err
	}

	ids := make([]int64, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, int64(g.ID))
	}
	rows, err := r.db.QueryxContext(ctx, `SELECT group_id, user_id FROM group_members WHERE group_id = ANY($1) ORDER BY group_id, position ASC`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make(map[int][]int, len(groups))
	for rows.Next() {
		var groupID, memberID int
		if err := rows.Scan(&groupID, &memberID); err != nil {
			return nil, err
		}
		members[groupID] = append(members[groupID], memberID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range groups {
		groups[i].MemberIDs = members[groups[i].ID]
	}
	return groups, nil
}

func insertMembers(ctx context.Context, tx *sqlx.Tx, groupID int, memberIDs []int) error {
	for pos, id := range memberIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id, position) VALUES ($1, $2, $3)`, groupID, id, pos); err != nil {
			return err
		}
	}
	return nil
}
