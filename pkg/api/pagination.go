// Package api holds response shapes shared by the HTTP handlers.
package api

import (
	"github.com/gin-gonic/gin"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest is a 1-based page of pageSize records.
type PageRequest struct {
	Page     int `form:"page" json:"page"`
	PageSize int `form:"pageSize" json:"pageSize"`
}

// ParsePagination reads page and pageSize from the query string. Missing,
// malformed or out-of-range values fall back to the first page and the
// default size, and sizes above MaxPageSize are capped. Strict rejection is
// left to the OpenAPI layer when it is enabled.
func ParsePagination(c *gin.Context) PageRequest {
	var req PageRequest
	_ = c.ShouldBindQuery(&req)
	return req.normalized()
}

func (p PageRequest) normalized() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.PageSize < 1:
		p.PageSize = DefaultPageSize
	case p.PageSize > MaxPageSize:
		p.PageSize = MaxPageSize
	}
	return p
}

func (p PageRequest) Offset() int { return (p.Page - 1) * p.PageSize }

func (p PageRequest) Limit() int { return p.PageSize }

// PageResponse is the envelope of every list endpoint. HasNext is a hint
// derived from a full page, so the last full page reports true.
type PageResponse[T any] struct {
	Data     []T  `json:"data"`
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasNext  bool `json:"hasNext"`
}

func NewPageResponse[T any](data []T, req PageRequest) PageResponse[T] {
	if data == nil {
		data = make([]T, 0)
	}
	return PageResponse[T]{
		Data:     data,
		Page:     req.Page,
		PageSize: req.PageSize,
		HasNext:  len(data) == req.PageSize,
	}
}
