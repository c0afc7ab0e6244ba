package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-adp-timetable/internal/dto"
	"github.com/noah-isme/sma-adp-timetable/internal/models"
)

const (
	responseMetaKey = "response_meta"
	cacheHitKey     = "cache_hit"
)

// WithResponseMeta prepares the meta map rendered next to timetable and audit payloads.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Next()
		meta := ensureMeta(c)
		if _, exists := meta["processing_time_ms"]; !exists {
			meta["processing_time_ms"] = time.Since(start).Milliseconds()
		}
	}
}

// SetCacheHit records whether the payload came from the Redis cache.
func SetCacheHit(c *gin.Context, hit bool) {
	ensureMeta(c)[cacheHitKey] = hit
}

// SetAuditMeta exposes the audit outcome so clients can gate a save without reading the report.
func SetAuditMeta(c *gin.Context, report *models.ConflictReport, hit bool) {
	meta := ensureMeta(c)
	meta[cacheHitKey] = hit
	if report == nil {
		return
	}
	meta["clean"] = report.Clean
	meta["blocking"] = report.Blocking()
	meta["violations"] = report.Summary.Total
}

// SetProposalMeta exposes the solve outcome and how long the proposal stays saveable.
func SetProposalMeta(c *gin.Context, proposal *dto.GenerateTimetableResponse) {
	if proposal == nil {
		return
	}
	meta := ensureMeta(c)
	meta["solve_status"] = proposal.Status
	meta["budget_exceeded"] = proposal.BudgetExceeded
	if !proposal.ExpiresAt.IsZero() {
		meta["proposal_expires_at"] = proposal.ExpiresAt.UTC().Format(time.RFC3339)
	}
}

// ExtractMeta returns the meta map stored on the context, or nil when none was set.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok {
			return typed
		}
	}
	return nil
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return map[string]interface{}{}
	}
	if meta := ExtractMeta(c); meta != nil {
		return meta
	}
	meta := make(map[string]interface{})
	c.Set(responseMetaKey, meta)
	return meta
}
