package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(ServiceName+"."+method, req, resp)
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// List returns tracked monitors.
func (c *Client) List() (*ListResponse, error) {
	var resp ListResponse
	if err := c.call("List", ListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Scan triggers a full scan, or a refresh of the current targets when
// refreshOnly is set.
func (c *Client) Scan(refreshOnly bool) (*ScanResponse, error) {
	var resp ScanResponse
	if err := c.call("Scan", ScanRequest{RefreshOnly: refreshOnly}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetBrightness changes a monitor's brightness.
func (c *Client) SetBrightness(req SetBrightnessRequest) (*MonitorResponse, error) {
	var resp MonitorResponse
	if err := c.call("SetBrightness", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetContrast changes a monitor's contrast.
func (c *Client) SetContrast(id string, level int) (*MonitorResponse, error) {
	var resp MonitorResponse
	if err := c.call("SetContrast", SetContrastRequest{ID: id, Level: level}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SaveCustomization stores a customization.
func (c *Client) SaveCustomization(custom Customization) (*SaveCustomizationResponse, error) {
	var resp SaveCustomizationResponse
	if err := c.call("SaveCustomization", SaveCustomizationRequest{Customization: custom}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LoadCustomization fetches the customization for one monitor.
func (c *Client) LoadCustomization(id string) (*LoadCustomizationResponse, error) {
	var resp LoadCustomizationResponse
	if err := c.call("LoadCustomization", LoadCustomizationRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListCustomizations lists stored customizations.
func (c *Client) ListCustomizations() (*ListCustomizationsResponse, error) {
	var resp ListCustomizationsResponse
	if err := c.call("ListCustomizations", ListCustomizationsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExportCustomizations returns the YAML export.
func (c *Client) ExportCustomizations() (*ExportCustomizationsResponse, error) {
	var resp ExportCustomizationsResponse
	if err := c.call("ExportCustomizations", ExportCustomizationsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ImportCustomizations applies a YAML export.
func (c *Client) ImportCustomizations(document string) (*ImportCustomizationsResponse, error) {
	var resp ImportCustomizationsResponse
	if err := c.call("ImportCustomizations", ImportCustomizationsRequest{Document: document}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop asks the daemon process to exit.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.call("Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
