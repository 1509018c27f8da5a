package models

// MemberSet is an insertion-ordered set of user ids. Order is join order:
// the first element is the earliest member still in the group.
type MemberSet struct {
	order []int
	index map[int]struct{}
}

// NewMemberSet builds a set from ids, keeping the first occurrence of duplicates.
func NewMemberSet(ids []int) *MemberSet {
	s := &MemberSet{
		order: make([]int, 0, len(ids)),
		index: make(map[int]struct{}, len(ids)),
	}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Contains reports membership in O(1).
func (s *MemberSet) Contains(id int) bool {
	_, ok := s.index[id]
	return ok
}

// Add appends id if it is not present. It returns false for duplicates.
func (s *MemberSet) Add(id int) bool {
	if s.Contains(id) {
		return false
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

// Remove deletes id while preserving the relative order of the others.
func (s *MemberSet) Remove(id int) bool {
	if !s.Contains(id) {
		return false
	}
	delete(s.index, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// First returns the earliest-joined member.
func (s *MemberSet) First() (int, bool) {
	if len(s.order) == 0 {
		return 0, false
	}
	return s.order[0], true
}

// Len returns the number of members.
func (s *MemberSet) Len() int {
	return len(s.order)
}

// IDs returns a copy of the members in join order.
func (s *MemberSet) IDs() []int {
	return append([]int(nil), s.order...)
}
