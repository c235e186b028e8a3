// Package levels derives member levels from their committed children.
package levels

import (
	"context"
	"strconv"

	"matrix/database"
	"matrix/models"
	"matrix/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Crossing is emitted once for every level a member passes.
type Crossing struct {
	MemberID uint
	Level    int
}

// CrossingHandler reacts to a crossing inside the unit that raised the level.
type CrossingHandler interface {
	LevelCrossed(u *database.Unit, c Crossing) error
}

type Engine struct {
	db      *gorm.DB
	log     *zap.Logger
	handler CrossingHandler
}

func NewEngine(db *gorm.DB, log *zap.Logger, handler CrossingHandler) *Engine {
	return &Engine{db: db, log: log, handler: handler}
}

// Derive returns the level implied by the levels of a member's approved
// children. Anything short of a full triple implies nothing (0).
func Derive(childLevels []int) int {
	if len(childLevels) < models.MaxChildren {
		return 0
	}
	lowest := childLevels[0]
	for _, l := range childLevels[1:] {
		if l < lowest {
			lowest = l
		}
	}
	if lowest+1 > models.MaxLevel {
		return models.MaxLevel
	}
	return lowest + 1
}

// Step recomputes one member inside u. It reports whether the level rose and
// returns the member's sponsor so callers can continue upward.
func (e *Engine) Step(u *database.Unit, memberID uint) (bool, *uint, error) {
	var m models.Member
	if err := database.LockByID(u.Tx, &m, "member", memberID); err != nil {
		return false, nil, err
	}

	var childLevels []int
	err := u.Tx.Model(&models.Member{}).
		Where("sponsor_id = ? AND status = ?", m.ID, models.MemberApproved).
		Pluck("level", &childLevels).Error
	if err != nil {
		return false, nil, err
	}

	next := Derive(childLevels)
	if next <= m.Level {
		return false, m.SponsorID, nil
	}

	if err := u.Tx.Model(&models.Member{}).Where("id = ?", m.ID).Update("level", next).Error; err != nil {
		return false, nil, err
	}

	for lvl := m.Level + 1; lvl <= next; lvl++ {
		if e.handler != nil {
			if err := e.handler.LevelCrossed(u, Crossing{MemberID: m.ID, Level: lvl}); err != nil {
				return false, nil, err
			}
		}
	}

	from := m.Level
	u.AfterCommit(func() {
		for lvl := from + 1; lvl <= next; lvl++ {
			monitoring.LevelCrossings.WithLabelValues(strconv.Itoa(lvl)).Inc()
		}
		e.log.Info("member level raised",
			zap.Uint("member_id", m.ID),
			zap.Int("from", from),
			zap.Int("to", next))
	})
	return true, m.SponsorID, nil
}

// Propagate walks up from start, one unit of work per member, until a level
// stops changing or the root is passed. It returns how many members rose.
func (e *Engine) Propagate(ctx context.Context, start *uint) (int, error) {
	return e.walk(ctx, start, true)
}

// Recompute re-runs every step from memberID to the root. Used to repair a
// propagation that was cut short; repeating it is a no-op.
func (e *Engine) Recompute(ctx context.Context, memberID uint) (int, error) {
	return e.walk(ctx, &memberID, false)
}

func (e *Engine) walk(ctx context.Context, start *uint, stopWhenStable bool) (int, error) {
	raised := 0
	seen := make(map[uint]bool)
	for cur := start; cur != nil; {
		id := *cur
		if seen[id] {
			break
		}
		seen[id] = true

		var (
			changed bool
			sponsor *uint
		)
		err := database.Atomic(ctx, e.db, func(u *database.Unit) error {
			var err error
			changed, sponsor, err = e.Step(u, id)
			return err
		})
		if err != nil {
			return raised, err
		}
		if changed {
			raised++
		} else if stopWhenStable {
			break
		}
		cur = sponsor
	}
	return raised, nil
}
