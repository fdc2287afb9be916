package client

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/icon-project/goagree/common/errors"
	"github.com/icon-project/goagree/server"
)

// MonitorCommits streams commits from height on, or from the next commit
// when height is zero. It returns when cancelCh is closed or the
// connection ends; a normal close by the server is not an error.
func (c *Client) MonitorCommits(height int64, cb func(v *server.CommitNotification), cancelCh <-chan bool) error {
	endpoint := strings.Replace(c.prefix(), "http", "ws", 1)
	hdr := http.Header{}
	for k, v := range c.CustomHeader {
		hdr.Set(k, v)
	}
	conn, err := WSConnect(endpoint+"/ws/commits", hdr, &server.CommitRequest{Height: height})
	if err != nil {
		return err
	}
	return WSReadJSONLoop(conn, func() interface{} { return new(server.CommitNotification) },
		func(v interface{}) {
			cb(v.(*server.CommitNotification))
		}, cancelCh)
}

// WSReadJSONLoop decodes messages into values made by newPtr until the
// connection fails or cancelCh is closed.
func WSReadJSONLoop(conn *websocket.Conn, newPtr func() interface{}, cb func(v interface{}), cancelCh <-chan bool) error {
	done := make(chan struct{})
	defer close(done)
	if cancelCh != nil {
		go func() {
			select {
			case <-cancelCh:
				_ = conn.Close()
			case <-done:
			}
		}()
	}
	defer conn.Close()
	for {
		v := newPtr()
		if err := conn.ReadJSON(v); err != nil {
			select {
			case <-cancelCh:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return errors.Wrap(err, "commit stream closed")
		}
		cb(v)
	}
}

func WSConnect(urlStr string, reqHeader http.Header, reqPtr interface{}) (*websocket.Conn, error) {
	if reqPtr == nil {
		return nil, errors.IllegalArgumentError.New("reqPtr cannot be nil")
	}
	conn, httpResp, err := websocket.DefaultDialer.Dial(urlStr, reqHeader)
	if err != nil {
		if httpResp != nil && httpResp.StatusCode/100 != 2 {
			defer httpResp.Body.Close()
			return nil, decodeError(httpResp)
		}
		return nil, errors.Wrapf(err, "fail to dial url=%s", urlStr)
	}
	if err := conn.WriteJSON(reqPtr); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "fail to send request")
	}
	return conn, nil
}
