package models

import "time"

// Group represents a chat group. MemberIDs is kept in join order.
type Group struct {
	ID          int       `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	AdminID     int       `db:"admin_id" json:"admin_id"`
	MemberIDs   []int     `db:"-" json:"member_ids"`
	AvatarURL   string    `db:"avatar_url" json:"avatar_url"`
	Version     int       `db:"version" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate membership without
// touching the original slice.
func (g Group) Clone() Group {
	out := g
	out.MemberIDs = append([]int(nil), g.MemberIDs...)
	return out
}

// Members returns the group's membership as an ordered set.
func (g Group) Members() *MemberSet {
	return NewMemberSet(g.MemberIDs)
}

// GroupAction names a committed change to a group.
type GroupAction string

const (
	ActionMembersAdded  GroupAction = "membersAdded"
	ActionMemberRemoved GroupAction = "memberRemoved"
	ActionMemberLeft    GroupAction = "memberLeft"
	ActionGroupUpdated  GroupAction = "groupUpdated"
	ActionGroupDeleted  GroupAction = "groupDeleted"
)

// GroupUpdate is the payload of a group-update push. Group is nil for deletions.
type GroupUpdate struct {
	Group          *Group      `json:"group"`
	Action         GroupAction `json:"action"`
	GroupID        int         `json:"group_id,omitempty"`
	AffectedUserID int         `json:"affected_user_id,omitempty"`
}
