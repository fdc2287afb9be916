package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/icon-project/goagree/common/errors"
	"github.com/icon-project/goagree/common/log"
	"github.com/icon-project/goagree/consensus"
)

const (
	configMaxSession       = 10
	configWriteTimeout     = 5 * time.Second
	configCloseGracePeriod = time.Second
)

type wsSession struct {
	c    *websocket.Conn
	node Node
}

type wsSessionManager struct {
	sync.Mutex
	maxSession int
	sessions   []*wsSession
	log        log.Logger
}

func newWSSessionManager(logger log.Logger) *wsSessionManager {
	return &wsSessionManager{
		maxSession: configMaxSession,
		log:        logger,
	}
}

func (wm *wsSessionManager) NewSession(c *websocket.Conn, n Node) *wsSession {
	wm.Lock()
	defer wm.Unlock()

	if len(wm.sessions) >= wm.maxSession {
		return nil
	}
	wss := &wsSession{c, n}
	wm.sessions = append(wm.sessions, wss)
	return wss
}

func (wm *wsSessionManager) stopSessionAt(i int) {
	wss := wm.sessions[i]
	if wss.c != nil {
		wss.c.Close()
		wss.c = nil
	}
	last := len(wm.sessions) - 1
	wm.sessions[i] = wm.sessions[last]
	wm.sessions[last] = nil
	wm.sessions = wm.sessions[:last]
}

func (wm *wsSessionManager) StopSession(wss *wsSession) {
	wm.Lock()
	defer wm.Unlock()

	for i := 0; i < len(wm.sessions); i++ {
		if wss == wm.sessions[i] {
			wm.stopSessionAt(i)
			return
		}
	}
}

func (wm *wsSessionManager) StopAllSessions() {
	wm.Lock()
	defer wm.Unlock()

	for _, wss := range wm.sessions {
		if wss.c != nil {
			wss.c.Close()
			wss.c = nil
		}
	}
	wm.sessions = nil
}

func (wm *wsSessionManager) StopSessionsForNode(n Node) {
	wm.Lock()
	defer wm.Unlock()

	for i := len(wm.sessions) - 1; i >= 0; i-- {
		if wm.sessions[i].node == n {
			wm.stopSessionAt(i)
		}
	}
}

func (wm *wsSessionManager) Len() int {
	wm.Lock()
	defer wm.Unlock()

	return len(wm.sessions)
}

// RunCommitSession streams commits of the node. The client opens with a
// CommitRequest; commits stored from Height on are replayed before live
// ones.
func (wm *wsSessionManager) RunCommitSession(ctx echo.Context) error {
	n := nodeOf(ctx)
	c, err := Upgrader().Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return nil
	}

	wss := wm.NewSession(c, n)
	if wss == nil {
		closeWith(c, websocket.CloseTryAgainLater, "too many stream sessions")
		c.Close()
		return nil
	}
	defer wm.StopSession(wss)

	var req CommitRequest
	if err := c.ReadJSON(&req); err != nil {
		closeWith(c, websocket.CloseUnsupportedData, "bad commit request")
		return nil
	}
	if err := ctx.Validate(&req); err != nil {
		closeWith(c, websocket.ClosePolicyViolation, err.Error())
		return nil
	}

	sctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	commits := n.SubscribeCommits(sctx)

	ech := make(chan error, 1)
	go readLoop(c, ech)

	next := req.Height
	if next > 0 {
		if next, err = catchUp(c, n, next, -1); err != nil {
			wm.log.Debugf("commit session ends err=%v", err)
			return nil
		}
	}
loop:
	for {
		select {
		case err = <-ech:
			break loop
		case cm, ok := <-commits:
			if !ok {
				break loop
			}
			if next > 0 && cm.Height < next {
				continue
			}
			if next > 0 && cm.Height > next {
				if next, err = catchUp(c, n, next, cm.Height); err != nil {
					break loop
				}
			}
			if err = writeCommit(c, cm); err != nil {
				break loop
			}
			next = cm.Height + 1
		}
	}
	wm.log.Debugf("commit session ends err=%v", err)
	return nil
}

// catchUp writes stored commits from height next up to, not including,
// upTo. A negative upTo stops at the first missing height.
func catchUp(c *websocket.Conn, n Node, next, upTo int64) (int64, error) {
	for upTo < 0 || next < upTo {
		cm, err := n.CommitAt(next)
		if err != nil {
			if upTo < 0 && errors.NotFoundError.Equals(err) {
				return next, nil
			}
			return next, err
		}
		if err := writeCommit(c, cm); err != nil {
			return next, err
		}
		next++
	}
	return next, nil
}

func writeCommit(c *websocket.Conn, cm *consensus.Commit) error {
	if err := c.SetWriteDeadline(time.Now().Add(configWriteTimeout)); err != nil {
		return err
	}
	return c.WriteJSON(&CommitNotification{
		Height: cm.Height,
		Round:  cm.Round,
		Hash:   cm.Block.Ref().Hash,
		Txs:    len(cm.Block.Txs),
	})
}

// closeWith sends a close frame and reads until the peer answers it or
// the grace period ends. It must not run beside another reader of c.
func closeWith(c *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(configWriteTimeout)); err != nil {
		return
	}
	_ = c.SetReadDeadline(time.Now().Add(configCloseGracePeriod))
	for {
		if _, _, err := c.NextReader(); err != nil {
			return
		}
	}
}

func Upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func readLoop(c *websocket.Conn, ech chan<- error) {
	for {
		if _, _, err := c.NextReader(); err != nil {
			ech <- err
			break
		}
	}
}
