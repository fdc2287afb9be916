package server

import (
	"context"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/icon-project/goagree/common"
	"github.com/icon-project/goagree/common/log"
	"github.com/icon-project/goagree/consensus"
	"github.com/icon-project/goagree/server/metric"
)

// Node is the part of a validator the HTTP API exposes.
type Node interface {
	Address() common.Address
	Status() *NodeStatus
	Evidence() []*consensus.Evidence
	EvidenceFor(addr common.Address) []*consensus.Evidence
	CommitAt(height int64) (*consensus.Commit, error)
	SubscribeCommits(ctx context.Context) <-chan *consensus.Commit
	SubmitTx(tx []byte) error
}

type Manager struct {
	e      *echo.Echo
	addr   string
	wssm   *wsSessionManager
	metric *metric.APIMetric
	log    log.Logger

	mtx   sync.RWMutex
	nodes map[string]Node
	ln    net.Listener
}

func NewManager(addr string, logger log.Logger) *Manager {
	e := echo.New()

	e.HideBanner = true
	e.HidePort = true

	e.HTTPErrorHandler = HTTPErrorHandler
	e.Validator = NewValidator()

	if logger == nil {
		logger = log.GlobalLogger()
	}
	logger = logger.WithFields(log.Fields{log.FieldKeyModule: "SR"})
	srv := &Manager{
		e:      e,
		addr:   addr,
		wssm:   newWSSessionManager(logger),
		metric: metric.NewAPIMetric(metric.NewMetricContext("server")),
		log:    logger,
		nodes:  make(map[string]Node),
	}
	srv.route()
	return srv
}

func (srv *Manager) SetNode(n Node) {
	srv.mtx.Lock()
	defer srv.mtx.Unlock()

	if n == nil {
		return
	}
	srv.nodes[n.Address().String()] = n
}

func (srv *Manager) RemoveNode(addr common.Address) {
	srv.mtx.Lock()
	defer srv.mtx.Unlock()

	if n, ok := srv.nodes[addr.String()]; ok {
		srv.wssm.StopSessionsForNode(n)
		delete(srv.nodes, addr.String())
	}
}

func (srv *Manager) Node(addr string) Node {
	srv.mtx.RLock()
	defer srv.mtx.RUnlock()

	return srv.nodes[addr]
}

// AnyNode returns the node with the lowest address, so repeated calls
// resolve to the same node.
func (srv *Manager) AnyNode() Node {
	srv.mtx.RLock()
	defer srv.mtx.RUnlock()

	var found string
	for k := range srv.nodes {
		if found == "" || k < found {
			found = k
		}
	}
	return srv.nodes[found]
}

func (srv *Manager) Nodes() []Node {
	srv.mtx.RLock()
	defer srv.mtx.RUnlock()

	nodes := make([]Node, 0, len(srv.nodes))
	for _, n := range srv.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Address().String() < nodes[j].Address().String()
	})
	return nodes
}

func (srv *Manager) route() {
	srv.e.Use(middleware.Recover())
	srv.e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		MaxAge: 3600,
	}))
	srv.e.Use(APIMetric(srv.metric))

	srv.e.GET("/status", srv.GetStatus)
	srv.e.POST("/transactions", srv.PostTransaction)

	srv.e.GET("/evidence", GetEvidence, AnyNodeInjector(srv))
	srv.e.GET("/evidence/:address", GetEvidenceFor, AnyNodeInjector(srv))
	srv.e.GET("/commits/:height", GetCommit, AnyNodeInjector(srv))
	srv.e.GET("/ws/commits", srv.wssm.RunCommitSession, AnyNodeInjector(srv))

	g := srv.e.Group("/nodes/:node", NodeInjector(srv))
	g.GET("/status", GetNodeStatus)
	g.GET("/evidence", GetEvidence)
	g.GET("/evidence/:address", GetEvidenceFor)
	g.GET("/commits/:height", GetCommit)
	g.GET("/ws/commits", srv.wssm.RunCommitSession)

	srv.e.GET("/metrics", echo.WrapHandler(metric.PromethusExporter()))
}

// Start serves until Stop is called.
func (srv *Manager) Start() error {
	ln, err := net.Listen("tcp", srv.addr)
	if err != nil {
		return err
	}
	srv.mtx.Lock()
	srv.ln = ln
	srv.mtx.Unlock()
	srv.e.Listener = ln
	srv.log.Infof("serving on %s", ln.Addr())
	if err := srv.e.Start(""); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Addr returns the bound address once Start has listened.
func (srv *Manager) Addr() string {
	srv.mtx.RLock()
	defer srv.mtx.RUnlock()

	if srv.ln == nil {
		return srv.addr
	}
	return srv.ln.Addr().String()
}

func (srv *Manager) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	srv.wssm.StopAllSessions()
	return srv.e.Shutdown(ctx)
}

// ServeHTTP lets tests drive the router without a listener.
func (srv *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	srv.e.ServeHTTP(w, r)
}
