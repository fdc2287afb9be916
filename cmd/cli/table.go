package cli

import (
	"fmt"
	"log"

	"github.com/gosuri/uitable"
	"github.com/jroimartin/gocui"

	"github.com/icon-project/goagree/consensus"
	"github.com/icon-project/goagree/server"
)

const (
	TableCellDisplayNil = "-"
)

func StatusToTable(sts []*server.NodeStatus, maxColWidth uint) *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = maxColWidth
	if len(sts) == 0 {
		table.AddRow("there is no validator")
		return table
	}
	table.AddRow("Address", "LastHeight", "Height", "Round", "Step", "Proposer", "TxPool", "Evidence")
	for _, st := range sts {
		height, round, step, proposer := TableCellDisplayNil, TableCellDisplayNil, TableCellDisplayNil, TableCellDisplayNil
		if cs := st.Consensus; cs != nil {
			height = fmt.Sprint(cs.Height)
			round = fmt.Sprint(cs.Round)
			step = cs.Step
			proposer = fmt.Sprint(cs.Proposer)
		}
		table.AddRow(st.Address, st.LastHeight, height, round, step, proposer, st.TxPool, st.Evidence)
	}
	return table
}

func EvidenceToTable(es []*consensus.Evidence, maxColWidth uint) *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = maxColWidth
	if len(es) == 0 {
		table.AddRow("there is no evidence")
		return table
	}
	table.AddRow("Kind", "Authority", "Height", "Round", "Stage", "First", "Second")
	for _, e := range es {
		stage := TableCellDisplayNil
		if e.Kind == consensus.EvidenceVote {
			stage = e.Stage.String()
		}
		table.AddRow(e.Kind, e.Authority, e.Height, e.Round, stage, e.First, e.Second)
	}
	return table
}

var (
	CuiQuitKeyEvtFunc  = func(g *gocui.Gui, v *gocui.View) error { return gocui.ErrQuit }
	CuiQuitUserEvtFunc = func(g *gocui.Gui) error { return gocui.ErrQuit }
)

func NewCui() (*gocui.Gui, <-chan bool) {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		log.Panicln(err)
	}

	g.SetManagerFunc(func(g *gocui.Gui) error {
		maxX, maxY := g.Size()
		if v, err := g.SetView("main", -1, -1, maxX, maxY); err != nil {
			if err != gocui.ErrUnknownView {
				return err
			}
			v.Wrap = true
			v.Overwrite = true
		}
		return nil
	})

	if err = g.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, CuiQuitKeyEvtFunc); err != nil {
		g.Close()
		log.Panicln(err)
	}
	termCh := make(chan bool)
	go func() {
		defer close(termCh)
		if err := g.MainLoop(); err != nil && err != gocui.ErrQuit {
			log.Panicln(err)
		}
	}()
	return g, termCh
}

func TermGui(g *gocui.Gui, termCh <-chan bool) {
	g.Update(CuiQuitUserEvtFunc)
	<-termCh
	g.Close()
}

// UpdateCuiByStatus redraws the main view with the given status.
func UpdateCuiByStatus(g *gocui.Gui, header string, sts []*server.NodeStatus) {
	g.Update(func(g *gocui.Gui) error {
		v, err := g.View("main")
		if err != nil {
			return err
		}
		v.Clear()
		if _, err := fmt.Fprintln(v, header); err != nil {
			return err
		}
		maxX, _ := v.Size()
		_, err = fmt.Fprint(v, StatusToTable(sts, uint(maxX)))
		return err
	})
}
