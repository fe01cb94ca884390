package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/raphaelgruber/reachbox/internal/metrics"
	"github.com/raphaelgruber/reachbox/internal/models"
	"github.com/raphaelgruber/reachbox/internal/pipeline"
	"github.com/raphaelgruber/reachbox/internal/reply"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) searchEmails(c *gin.Context) {
	q := models.SearchQuery{
		Text:    c.Query("text"),
		Account: c.Query("account"),
		Folder:  c.Query("folder"),
	}

	if raw := c.Query("category"); raw != "" {
		category, err := models.LookupCategory(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		q.Category = category
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		q.Limit = limit
	}

	start := time.Now()
	emails, err := s.deps.Search.SearchEmails(c.Request.Context(), q)
	s.record(metrics.OpSearch, start, err)
	if err != nil {
		s.logger.Error("search failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search index unavailable"})
		return
	}
	if emails == nil {
		emails = []models.EmailRecord{}
	}
	c.JSON(http.StatusOK, emails)
}

func (s *Server) suggestReply(c *gin.Context) {
	var email models.EmailRecord
	if err := c.ShouldBindJSON(&email); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start := time.Now()
	text, err := s.deps.Reply.SuggestReply(c.Request.Context(), email)
	s.record(metrics.OpReply, start, err)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, reply.ErrReplyUnavailable) {
			status = http.StatusServiceUnavailable
		}
		s.logger.Error("reply failed", "error", err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": text})
}

type similarRequest struct {
	Account string `json:"account" binding:"required"`
	Text    string `json:"text" binding:"required"`
	Limit   int    `json:"limit"`
}

func (s *Server) similarEmails(c *gin.Context) {
	if s.deps.Content == nil || s.deps.Embedder == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "content store not configured"})
		return
	}

	var req similarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Limit <= 0 {
		req.Limit = 5
	}

	embedding, err := s.deps.Embedder.Embed(c.Request.Context(), req.Text)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	uids, err := s.deps.Content.Similar(c.Request.Context(), req.Account, embedding, req.Limit)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if uids == nil {
		uids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"account": req.Account, "uids": uids})
}

func (s *Server) ingestEmail(c *gin.Context) {
	var email models.EmailRecord
	if err := c.ShouldBindJSON(&email); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email.Normalize()
	if err := email.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := s.deps.Ingest.Process(c.Request.Context(), email)
	if err != nil {
		status := http.StatusServiceUnavailable
		if !errors.Is(err, pipeline.ErrWorkerClosed) && c.Request.Context().Err() != nil {
			status = http.StatusRequestTimeout
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, outcome)
}

type knowledgeRequest struct {
	Text string `json:"text" binding:"required"`
}

func (s *Server) addKnowledge(c *gin.Context) {
	var req knowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	start := time.Now()
	snippet, err := s.deps.Knowledge.Add(c.Request.Context(), req.Text)
	s.record(metrics.OpKnowledge, start, err)
	if err != nil {
		s.logger.Error("knowledge add failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": snippet.ID, "text": snippet.Text})
}

func (s *Server) stats(c *gin.Context) {
	if s.deps.Metrics == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, s.deps.Metrics.Snapshot())
}

func (s *Server) record(op string, start time.Time, err error) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordTiming(op, time.Since(start), err)
	}
}
