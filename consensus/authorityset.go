package consensus

import (
	"fmt"

	"github.com/icon-project/goagree/common"
	"github.com/icon-project/goagree/common/errors"
)

type Authority struct {
	Address common.Address `json:"address" mapstructure:"address"`
	Weight  int64          `json:"weight" mapstructure:"weight"`
}

func (a Authority) String() string {
	return fmt.Sprintf("%s:%d", a.Address, a.Weight)
}

// AuthoritySet is the roster of one height. It is immutable after
// construction and may be shared freely.
type AuthoritySet struct {
	list      []Authority
	index     map[common.Address]int
	total     int64
	threshold int64
	selector  ProposalSelector
}

// QuorumThreshold returns ceil((2n+1)/3) for the total weight n.
func QuorumThreshold(total int64) int64 {
	return (2*total + 3) / 3
}

func NewAuthoritySet(list []Authority, selector ProposalSelector) (*AuthoritySet, error) {
	if len(list) == 0 {
		return nil, errors.FatalConfigError.New("empty authority set")
	}
	if selector == nil {
		return nil, errors.FatalConfigError.New("no proposal selector")
	}
	as := &AuthoritySet{
		list:     make([]Authority, len(list)),
		index:    make(map[common.Address]int, len(list)),
		selector: selector,
	}
	for i, a := range list {
		if a.Address.IsZero() {
			return nil, errors.FatalConfigError.Errorf("malformed authority at index=%d", i)
		}
		if a.Weight <= 0 {
			return nil, errors.FatalConfigError.Errorf("authority=%s has weight=%d", a.Address, a.Weight)
		}
		if _, dup := as.index[a.Address]; dup {
			return nil, errors.FatalConfigError.Errorf("duplicate authority=%s", a.Address)
		}
		as.list[i] = a
		as.index[a.Address] = i
		as.total += a.Weight
	}
	as.threshold = QuorumThreshold(as.total)
	if as.threshold > as.total || 3*as.threshold <= 2*as.total {
		return nil, errors.FatalConfigError.Errorf("inconsistent threshold=%d total=%d",
			as.threshold, as.total)
	}
	return as, nil
}

// NewEqualAuthoritySet gives every address weight 1.
func NewEqualAuthoritySet(addrs []common.Address, selector ProposalSelector) (*AuthoritySet, error) {
	list := make([]Authority, len(addrs))
	for i, addr := range addrs {
		list[i] = Authority{Address: addr, Weight: 1}
	}
	return NewAuthoritySet(list, selector)
}

func (as *AuthoritySet) Len() int {
	return len(as.list)
}

func (as *AuthoritySet) TotalWeight() int64 {
	return as.total
}

func (as *AuthoritySet) QuorumThreshold() int64 {
	return as.threshold
}

// FaultTolerance returns floor((n-1)/3) for the total weight n.
func (as *AuthoritySet) FaultTolerance() int64 {
	return (as.total - 1) / 3
}

func (as *AuthoritySet) IsAuthority(addr common.Address) bool {
	_, ok := as.index[addr]
	return ok
}

func (as *AuthoritySet) IndexOf(addr common.Address) int {
	if i, ok := as.index[addr]; ok {
		return i
	}
	return -1
}

// WeightOf returns 0 for non-members.
func (as *AuthoritySet) WeightOf(addr common.Address) int64 {
	if i, ok := as.index[addr]; ok {
		return as.list[i].Weight
	}
	return 0
}

func (as *AuthoritySet) Get(i int) Authority {
	return as.list[i]
}

func (as *AuthoritySet) Authorities() []Authority {
	return append([]Authority(nil), as.list...)
}

func (as *AuthoritySet) ProposerFor(round int32) common.Address {
	return as.selector.Select(round, as.list)
}

func (as *AuthoritySet) String() string {
	return fmt.Sprintf("AuthoritySet{n:%d total:%d threshold:%d}", len(as.list), as.total, as.threshold)
}
