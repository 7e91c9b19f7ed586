package modbus

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// Client serializes access to one Modbus TCP link. Every primitive
// operation acquires the mutex for exactly one wire round trip, so a
// multi-register transfer is never interleaved with another caller's
// bytes. The client never retries; retry policy belongs to callers.
type Client struct {
	address       string
	conn          net.Conn
	mu            sync.Mutex
	transactionID uint16
	timeout       time.Duration
	connected     bool
}

func NewClient(address string, timeout time.Duration) *Client {
	return &Client{
		address: address,
		timeout: timeout,
	}
}

// Connect establishes the TCP connection.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	conn, err := net.DialTimeout("tcp", c.address, c.timeout)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	c.conn = conn
	c.connected = true

	return nil
}

// Close shuts the connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}

	err := c.conn.Close()
	c.connected = false
	c.conn = nil

	return err
}

// Connected reports whether the link is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// sendFrame performs one request/response round trip under the lock.
func (c *Client) sendFrame(ctx context.Context, request *Frame) (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, fmt.Errorf("not connected")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.transactionID++
	request.TransactionID = c.transactionID

	requestData := request.Encode()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetWriteDeadline(deadline)

	if _, err := c.conn.Write(requestData); err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}

	c.conn.SetReadDeadline(deadline)

	responseBuffer := make([]byte, 260) // max Modbus TCP frame
	n, err := c.conn.Read(responseBuffer)
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}

	response, err := DecodeFrame(responseBuffer[:n])
	if err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}

	if response.TransactionID != request.TransactionID {
		return nil, fmt.Errorf("transaction ID mismatch: expected %d, got %d",
			request.TransactionID, response.TransactionID)
	}

	return response, nil
}

// ReadCoils reads quantity coils starting at startAddr (function 0x01).
func (c *Client) ReadCoils(ctx context.Context, unitID uint8, startAddr, quantity uint16) ([]bool, error) {
	response, err := c.sendFrame(ctx, readRequest(unitID, FuncReadCoils, startAddr, quantity))
	if err != nil {
		return nil, err
	}
	return response.ParseBitResponse(quantity)
}

// ReadDiscreteInputs reads quantity discrete inputs (function 0x02).
func (c *Client) ReadDiscreteInputs(ctx context.Context, unitID uint8, startAddr, quantity uint16) ([]bool, error) {
	response, err := c.sendFrame(ctx, readRequest(unitID, FuncReadDiscreteInputs, startAddr, quantity))
	if err != nil {
		return nil, err
	}
	return response.ParseBitResponse(quantity)
}

// ReadHoldingRegisters reads quantity holding registers (function 0x03).
func (c *Client) ReadHoldingRegisters(ctx context.Context, unitID uint8, startAddr, quantity uint16) ([]uint16, error) {
	response, err := c.sendFrame(ctx, readRequest(unitID, FuncReadHoldingRegisters, startAddr, quantity))
	if err != nil {
		return nil, err
	}
	return response.ParseRegisterResponse()
}

// ReadInputRegisters reads quantity input registers (function 0x04).
func (c *Client) ReadInputRegisters(ctx context.Context, unitID uint8, startAddr, quantity uint16) ([]uint16, error) {
	response, err := c.sendFrame(ctx, readRequest(unitID, FuncReadInputRegisters, startAddr, quantity))
	if err != nil {
		return nil, err
	}
	return response.ParseRegisterResponse()
}

// WriteCoil writes a single coil (function 0x05).
func (c *Client) WriteCoil(ctx context.Context, unitID uint8, addr uint16, value bool) error {
	wire := uint16(0x0000)
	if value {
		wire = 0xFF00
	}

	response, err := c.sendFrame(ctx, writeSingleRequest(unitID, FuncWriteSingleCoil, addr, wire))
	if err != nil {
		return err
	}
	return response.Exception()
}

// WriteCoils writes multiple coils (function 0x0F).
func (c *Client) WriteCoils(ctx context.Context, unitID uint8, startAddr uint16, values []bool) error {
	response, err := c.sendFrame(ctx, writeCoilsRequest(unitID, startAddr, values))
	if err != nil {
		return err
	}
	return response.Exception()
}

// WriteSingleRegister writes one holding register (function 0x06).
func (c *Client) WriteSingleRegister(ctx context.Context, unitID uint8, addr, value uint16) error {
	response, err := c.sendFrame(ctx, writeSingleRequest(unitID, FuncWriteSingleRegister, addr, value))
	if err != nil {
		return err
	}
	return response.Exception()
}

// WriteRegisters writes multiple holding registers (function 0x10).
func (c *Client) WriteRegisters(ctx context.Context, unitID uint8, startAddr uint16, values []uint16) error {
	response, err := c.sendFrame(ctx, writeRegistersRequest(unitID, startAddr, values))
	if err != nil {
		return err
	}
	return response.Exception()
}
