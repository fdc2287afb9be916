package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/icon-project/goagree/common"
	"github.com/icon-project/goagree/common/errors"
	"github.com/icon-project/goagree/consensus"
	"github.com/icon-project/goagree/server"
)

// Client talks to the HTTP API served by server.Manager. With Node set,
// requests are routed to that validator instead of the lowest one.
type Client struct {
	hc           *http.Client
	Endpoint     string
	Node         string
	CustomHeader map[string]string
}

func NewClient(hc *http.Client, endpoint string) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{hc: hc, Endpoint: strings.TrimSuffix(endpoint, "/")}
}

func (c *Client) prefix() string {
	if c.Node != "" {
		return c.Endpoint + "/nodes/" + c.Node
	}
	return c.Endpoint
}

func (c *Client) Do(method, url string, reqPtr, respPtr interface{}) error {
	var body io.Reader
	if reqPtr != nil {
		b, err := json.Marshal(reqPtr)
		if err != nil {
			return errors.Wrap(err, "fail to marshal request")
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return errors.Wrapf(err, "fail to make request url=%s", url)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.CustomHeader {
		req.Header.Set(k, v)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "fail to request url=%s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return decodeError(resp)
	}
	if respPtr == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(respPtr); err != nil {
		return errors.Wrapf(err, "fail to decode response url=%s", url)
	}
	return nil
}

// decodeError restores the coded error carried by an ErrorResponse.
func decodeError(resp *http.Response) error {
	var er server.ErrorResponse
	b, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(b, &er); err != nil || er.Message == "" {
		return errors.Errorf("http-status(%s) body=%s", resp.Status, strings.TrimSpace(string(b)))
	}
	if er.Code == 0 {
		return errors.UnknownError.Errorf("http-status(%s) %s", resp.Status, er.Message)
	}
	return errors.Code(er.Code).New(er.Message)
}

// Status returns the status of every validator in the process.
func (c *Client) Status() ([]*server.NodeStatus, error) {
	var res []*server.NodeStatus
	if c.Node != "" {
		st, err := c.NodeStatus()
		if err != nil {
			return nil, err
		}
		return append(res, st), nil
	}
	if err := c.Do(http.MethodGet, c.Endpoint+"/status", nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) NodeStatus() (*server.NodeStatus, error) {
	if c.Node == "" {
		return nil, errors.IllegalArgumentError.New("no node selected")
	}
	res := new(server.NodeStatus)
	if err := c.Do(http.MethodGet, c.prefix()+"/status", nil, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Evidence lists recorded misbehavior, restricted to addr unless it is nil.
func (c *Client) Evidence(addr *common.Address) ([]*consensus.Evidence, error) {
	url := c.prefix() + "/evidence"
	if addr != nil {
		url += "/" + addr.String()
	}
	var res []*consensus.Evidence
	if err := c.Do(http.MethodGet, url, nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// Commit returns the commit at height as raw JSON.
func (c *Client) Commit(height int64) (json.RawMessage, error) {
	var res json.RawMessage
	url := fmt.Sprintf("%s/commits/%d", c.prefix(), height)
	if err := c.Do(http.MethodGet, url, nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) SendTransaction(data []byte) (*server.TransactionResponse, error) {
	res := new(server.TransactionResponse)
	req := &server.TransactionRequest{Data: data}
	if err := c.Do(http.MethodPost, c.Endpoint+"/transactions", req, res); err != nil {
		return nil, err
	}
	return res, nil
}
