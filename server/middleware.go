package server

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/icon-project/goagree/common/errors"
	"github.com/icon-project/goagree/server/metric"
)

const keyNode = "node"

func AnyNodeInjector(srv *Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			n := srv.AnyNode()
			if n == nil {
				return errors.NotFoundError.New("no node")
			}
			ctx.Set(keyNode, n)
			return next(ctx)
		}
	}
}

func NodeInjector(srv *Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			addr := ctx.Param("node")
			n := srv.Node(addr)
			if n == nil {
				return errors.NotFoundError.Errorf("no node %s", addr)
			}
			ctx.Set(keyNode, n)
			return next(ctx)
		}
	}
}

func nodeOf(ctx echo.Context) Node {
	n, _ := ctx.Get(keyNode).(Node)
	return n
}

// APIMetric records latency and failures per route.
func APIMetric(m *metric.APIMetric) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)
			if err != nil {
				ctx.Error(err)
			}
			status := ctx.Response().Status
			m.OnRequest(ctx.Path(), strconv.Itoa(status), time.Since(start), status >= 400)
			return nil
		}
	}
}
