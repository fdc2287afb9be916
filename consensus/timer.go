package consensus

import "fmt"

// TimerID names one scheduled timeout. Only the most recently scheduled
// id of a driver is live; every other id is stale and ignored.
type TimerID struct {
	Height int64
	Round  int32
	Step   Step
	Seq    int64
}

func (id TimerID) String() string {
	return fmt.Sprintf("Timer{H:%d R:%d %s #%d}", id.Height, id.Round, id.Step, id.Seq)
}
