package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Member is one entry of a project's access list. The role travels as "rol".
type Member struct {
	UserID uint        `json:"user_id"`
	Role   ProjectRole `json:"rol"`
}

// Members is the ordered access list embedded in a project row.
// It is stored as a JSON array in a text column.
type Members []Member

// Value encodes the list as a JSON array. A nil list is stored as "[]".
func (m Members) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]Member(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan decodes a stored list. Besides the canonical array it accepts rows
// where the array was written as a JSON string (double-encoded).
func (m *Members) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Members{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("members: unsupported column type %T", src)
	}

	decoded, err := DecodeMembers(raw)
	if err != nil {
		return err
	}
	*m = decoded
	return nil
}

// DecodeMembers parses a persisted member list.
func DecodeMembers(raw []byte) (Members, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Members{}, nil
	}

	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("members: %w", err)
		}
		return DecodeMembers([]byte(inner))
	}

	var list []Member
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("members: %w", err)
	}
	for _, member := range list {
		if !member.Role.Valid() {
			return nil, fmt.Errorf("members: invalid role %q for user %d", member.Role, member.UserID)
		}
	}
	if list == nil {
		list = []Member{}
	}
	return Members(list), nil
}

// MarshalJSON keeps an empty list as [] on the wire.
func (m Members) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Member(m))
}

func (m Members) UserIDs() []uint {
	ids := make([]uint, 0, len(m))
	for _, member := range m {
		ids = append(ids, member.UserID)
	}
	return ids
}

func (m Members) Clone() Members {
	out := make(Members, len(m))
	copy(out, m)
	return out
}

// Upsert returns a copy of the list where every entry of additions replaces
// any existing entry for the same user. New users are appended in order;
// when additions repeats a user, the last role wins.
func (m Members) Upsert(additions ...Member) Members {
	out := m.Clone()
	for _, add := range additions {
		replaced := false
		for i := range out {
			if out[i].UserID == add.UserID {
				if !replaced {
					out[i].Role = add.Role
					replaced = true
				}
			}
		}
		if replaced {
			out = out.dedupe(add.UserID)
			continue
		}
		out = append(out, add)
	}
	return out
}

// Without returns a copy of the list with every entry for userID removed.
func (m Members) Without(userID uint) Members {
	out := make(Members, 0, len(m))
	for _, member := range m {
		if member.UserID != userID {
			out = append(out, member)
		}
	}
	return out
}

// dedupe keeps only the first entry for userID.
func (m Members) dedupe(userID uint) Members {
	out := make(Members, 0, len(m))
	seen := false
	for _, member := range m {
		if member.UserID == userID {
			if seen {
				continue
			}
			seen = true
		}
		out = append(out, member)
	}
	return out
}
