package remote

import (
	"encoding/json"
	"net"
)

// Client dials a remote control Server and issues the informational
// method calls, spec.md §6.3. One Client serializes requests over a
// single connection; it is not safe for concurrent use.
type Client struct {
	conn net.Conn
	dec  *json.Decoder
	enc  *json.Encoder
	next int
}

// Dial connects to a remote control server at addr.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, dec: json.NewDecoder(conn), enc: json.NewEncoder(conn)}, nil
}

func (c *Client) call(method string, result interface{}) error {
	c.next++
	id, _ := json.Marshal(c.next)
	if err := c.enc.Encode(request{ID: id, Method: method}); err != nil {
		return err
	}
	var resp struct {
		ID     json.RawMessage `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := c.dec.Decode(&resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	return json.Unmarshal(resp.Result, result)
}

// GetSystemState calls getSystemState.
func (c *Client) GetSystemState() (SystemState, error) {
	var s SystemState
	err := c.call("getSystemState", &s)
	return s, err
}

// GetDAQStats calls getDAQStats.
func (c *Client) GetDAQStats() (DAQStats, error) {
	var s DAQStats
	err := c.call("getDAQStats", &s)
	return s, err
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
