package module

type ConsensusStatus struct {
	Height   int64  `json:"height"`
	Round    int32  `json:"round"`
	Step     string `json:"step"`
	Proposer bool   `json:"proposer"`
}

type Consensus interface {
	Start() error
	Term()
	GetStatus() *ConsensusStatus
}
