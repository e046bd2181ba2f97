package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	documentdomain "github.com/billforge/billforge/internal/document/domain"
)

func (s *Server) CreateDocument(c *gin.Context) {
	var req documentdomain.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_json", err.Error()))
		return
	}

	doc, err := s.documentSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": doc})
}

func (s *Server) UpdateDocument(c *gin.Context) {
	var req documentdomain.UpdateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_json", err.Error()))
		return
	}

	doc, err := s.documentSvc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": doc})
}

func (s *Server) GetDocument(c *gin.Context) {
	doc, err := s.documentSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":    doc,
		"overdue": doc.IsOverdue(time.Now().UTC()),
	})
}

func (s *Server) ListDocuments(c *gin.Context) {
	req := documentdomain.ListDocumentRequest{
		PageToken: c.Query("page_token"),
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := documentdomain.DocumentStatus(strings.ToUpper(raw))
		req.Status = &status
	}
	if raw := strings.TrimSpace(c.Query("customer_id")); raw != "" {
		req.CustomerID = &raw
	}
	if from, ok := parseDateQuery(c, "created_from"); ok {
		req.CreatedFrom = from
	}
	if to, ok := parseDateQuery(c, "created_to"); ok {
		req.CreatedTo = to
	}
	if from, ok := parseDateQuery(c, "due_from"); ok {
		req.DueFrom = from
	}
	if to, ok := parseDateQuery(c, "due_to"); ok {
		req.DueTo = to
	}

	resp, err := s.documentSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Documents,
		"page_info": resp.PageInfo,
	})
}

func (s *Server) MarkDocumentSent(c *gin.Context) {
	doc, err := s.documentSvc.MarkSent(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": doc})
}

func (s *Server) MarkDocumentViewed(c *gin.Context) {
	doc, err := s.documentSvc.MarkViewed(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": doc})
}

func (s *Server) MarkDocumentPaid(c *gin.Context) {
	var body struct {
		Note string `json:"note"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_json", err.Error()))
		return
	}

	doc, err := s.documentSvc.MarkPaid(c.Request.Context(), c.Param("id"), body.Note)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": doc})
}

func parseDateQuery(c *gin.Context, key string) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, false
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, false
		}
	}
	utc := parsed.UTC()
	return &utc, true
}
