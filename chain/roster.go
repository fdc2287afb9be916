package chain

import (
	"sort"

	"github.com/icon-project/goagree/common/errors"
	"github.com/icon-project/goagree/consensus"
)

// RosterEntry makes Authorities the roster from Height on.
type RosterEntry struct {
	Height      int64                 `json:"height"`
	Authorities []consensus.Authority `json:"authorities"`
}

// Roster is a fixed schedule of authority sets.
type Roster struct {
	entries []RosterEntry
}

func NewRoster(entries ...RosterEntry) (*Roster, error) {
	if len(entries) == 0 {
		return nil, errors.FatalConfigError.New("empty roster")
	}
	list := append([]RosterEntry(nil), entries...)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Height < list[j].Height
	})
	for i, e := range list {
		if i > 0 && list[i-1].Height == e.Height {
			return nil, errors.FatalConfigError.Errorf("two roster entries at height=%d", e.Height)
		}
		if _, err := consensus.NewAuthoritySet(e.Authorities, consensus.RoundRobin{}); err != nil {
			return nil, errors.FatalConfigError.Wrapf(err, "roster at height=%d", e.Height)
		}
	}
	return &Roster{entries: list}, nil
}

// AuthoritiesAt returns the last entry starting at or below height.
func (r *Roster) AuthoritiesAt(height int64) ([]consensus.Authority, error) {
	idx := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].Height > height
	})
	if idx == 0 {
		return nil, errors.NotFoundError.Errorf("no roster for height=%d", height)
	}
	return append([]consensus.Authority(nil), r.entries[idx-1].Authorities...), nil
}
