package rest

import (
	"net/http"

	"github.com/deepmodeling/coincell-station/internal/codec"
	"github.com/deepmodeling/coincell-station/internal/plc"
	"github.com/deepmodeling/coincell-station/internal/types"
	"github.com/gin-gonic/gin"
)

type ReadNodeRequest struct {
	Count     uint16 `json:"count"`
	Type      string `json:"type" binding:"omitempty,oneof=bool int16 uint16 int32 uint32 int64 uint64 float32 float64 string"`
	WordOrder string `json:"word_order" binding:"omitempty,oneof=big little"`
}

type WriteNodeRequest struct {
	Value     any    `json:"value" binding:"required"`
	Type      string `json:"type" binding:"omitempty,oneof=bool int16 uint16 int32 uint32 int64 uint64 float32 float64 string"`
	WordOrder string `json:"word_order" binding:"omitempty,oneof=big little"`
}

type NodeInfo struct {
	Name    string `json:"name"`
	Address uint16 `json:"address"`
	Kind    string `json:"kind"`
	Type    string `json:"type,omitempty"`
	Order   string `json:"word_order,omitempty"`
}

// GET /api/v1/nodes
func (s *Server) listNodes(c *gin.Context) {
	registry := s.lm.Registry()

	nodes := make([]NodeInfo, 0, registry.Len())
	for _, name := range registry.Names() {
		node := registry.MustNode(name)
		nodes = append(nodes, NodeInfo{
			Name:    node.Name,
			Address: node.Address,
			Kind:    string(node.Kind),
			Type:    string(node.DataType),
			Order:   string(node.Order),
		})
	}

	c.JSON(http.StatusOK, gin.H{"nodes": nodes})
}

// POST /api/v1/nodes/:name/read
func (s *Server) readNode(c *gin.Context) {
	node, err := s.lm.Registry().Node(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("NODE_404", "Unknown node", err.Error()))
		return
	}

	var req ReadNodeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse("NODE_400", "Invalid request body", err.Error()))
			return
		}
	}

	var opts []plc.Option
	if req.Type != "" {
		opts = append(opts, plc.WithType(codec.ScalarType(req.Type)))
	}
	if req.WordOrder != "" {
		opts = append(opts, plc.WithOrder(codec.WordOrder(req.WordOrder)))
	}

	count := req.Count
	if count == 0 {
		count = 1
		dataType := node.DataType
		if req.Type != "" {
			dataType = codec.ScalarType(req.Type)
		}
		if dataType != "" && dataType != codec.TypeString {
			if n, err := codec.RegisterCount(dataType, 0); err == nil {
				count = n
			}
		}
	}

	value, fault, err := node.Read(c.Request.Context(), count, opts...)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("NODE_400", "Read rejected", err.Error()))
		return
	}
	if fault {
		c.JSON(http.StatusBadGateway, types.NewErrorResponse("NODE_502", "PLC unreachable", nil))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":  node.Name,
		"value": value,
	})
}

// POST /api/v1/nodes/:name/write
func (s *Server) writeNode(c *gin.Context) {
	node, err := s.lm.Registry().Node(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("NODE_404", "Unknown node", err.Error()))
		return
	}

	var req WriteNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("NODE_400", "Invalid request body", err.Error()))
		return
	}

	var opts []plc.Option
	if req.Type != "" {
		opts = append(opts, plc.WithType(codec.ScalarType(req.Type)))
	}
	if req.WordOrder != "" {
		opts = append(opts, plc.WithOrder(codec.WordOrder(req.WordOrder)))
	}

	fault, err := node.Write(c.Request.Context(), req.Value, opts...)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("NODE_400", "Write rejected", err.Error()))
		return
	}
	if fault {
		c.JSON(http.StatusBadGateway, types.NewErrorResponse("NODE_502", "PLC unreachable", nil))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":    node.Name,
		"written": true,
	})
}
