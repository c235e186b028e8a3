package placement

import (
	"context"

	"matrix/apperr"
	"matrix/models"
)

const (
	// DefaultTreeChunk bounds the ids bound into one sponsor_id IN query.
	DefaultTreeChunk = 1000
	// DefaultTreeMaxNodes bounds the descendants one projection returns.
	DefaultTreeMaxNodes = 5000
)

// Node is one member in a tree projection. Referral codes are left out: they
// identify a member for sign-in and belong to that member alone.
type Node struct {
	ID       uint                `json:"id"`
	FullName string              `json:"full_name"`
	Slot     models.Slot         `json:"slot,omitempty"`
	Level    int                 `json:"level"`
	Status   models.MemberStatus `json:"status"`
	Depth    int                 `json:"depth"`
	Children []*Node             `json:"children"`

	// Truncated is set on the top node when the node limit cut the projection short.
	Truncated bool `json:"truncated,omitempty"`
}

func nodeOf(m *models.Member, depth int) *Node {
	return &Node{
		ID:       m.ID,
		FullName: m.FullName,
		Slot:     m.Slot,
		Level:    m.Level,
		Status:   m.Status,
		Depth:    depth,
		Children: []*Node{},
	}
}

// Tree projects the committed descendants of rootID breadth first. Each depth
// is loaded in chunks of sponsor ids; maxDepth is clamped to the level cap and
// at most treeMaxNodes descendants are returned.
func (m *Manager) Tree(ctx context.Context, rootID uint, maxDepth int) (*Node, error) {
	if maxDepth <= 0 || maxDepth > models.MaxLevel {
		maxDepth = models.MaxLevel
	}

	root, err := m.Get(ctx, rootID)
	if err != nil {
		return nil, err
	}

	top := nodeOf(root, 0)
	seen := map[uint]bool{root.ID: true}
	frontier := []*Node{top}
	count := 0

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		parents := make(map[uint]*Node, len(frontier))
		for _, n := range frontier {
			parents[n.ID] = n
		}

		var next []*Node
		for start := 0; start < len(frontier); start += m.treeChunk {
			end := min(start+m.treeChunk, len(frontier))
			ids := make([]uint, 0, end-start)
			for _, n := range frontier[start:end] {
				ids = append(ids, n.ID)
			}

			var children []models.Member
			err := m.db.WithContext(ctx).
				Where("sponsor_id IN ? AND status = ?", ids, models.MemberApproved).
				Order("sponsor_id, position").
				Find(&children).Error
			if err != nil {
				return nil, apperr.Internal(err, "load tree level")
			}

			for i := range children {
				c := &children[i]
				if seen[c.ID] || c.SponsorID == nil {
					continue
				}
				if count >= m.treeMaxNodes {
					top.Truncated = true
					return top, nil
				}
				seen[c.ID] = true
				n := nodeOf(c, depth)
				parent := parents[*c.SponsorID]
				parent.Children = append(parent.Children, n)
				next = append(next, n)
				count++
			}
		}
		frontier = next
	}
	return top, nil
}
