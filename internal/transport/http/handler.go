package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/socialstack/moderation-service/internal/classifier"
	"github.com/socialstack/moderation-service/internal/moderation"
	"github.com/socialstack/moderation-service/internal/repo"
)

func RegisterHandlers(r *gin.Engine, eng *moderation.Engine, cls *classifier.Client, rep repo.RepositoryInterface) {
	v1 := r.Group("/v1")
	{
		v1.POST("/moderation/reports", reportHandler(eng))
		v1.POST("/moderation/check", checkHandler(eng, cls))
		v1.GET("/users/:id/violations", violationsHandler(rep))
		v1.GET("/users/:id/status", statusHandler(rep))
	}
}

type reportReq struct {
	UserID       string `json:"user_id" binding:"required"`
	Description  string `json:"description" binding:"required"`
	TextContent  string `json:"text_content"`
	ImageContent string `json:"image_content"`
}

func reportHandler(eng *moderation.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reportReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		outcome := eng.ReportViolation(c, moderation.Report{
			UserID:       req.UserID,
			Description:  req.Description,
			TextContent:  req.TextContent,
			ImageContent: req.ImageContent,
		})
		if outcome.RecordStatus == moderation.RecordStatusError {
			c.JSON(http.StatusInternalServerError, outcome)
			return
		}
		c.JSON(http.StatusOK, outcome)
	}
}

type checkReq struct {
	UserID   string `json:"user_id" binding:"required"`
	Text     string `json:"text"`
	ImageURL string `json:"image_url"`
}

// checkHandler classifies the content first and only reports a violation when
// the classifier flags it.
func checkHandler(eng *moderation.Engine, cls *classifier.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cls == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "classifier not configured"})
			return
		}
		var req checkReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		verdict, err := cls.Classify(c, req.Text, req.ImageURL)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		if !verdict.Violation {
			c.JSON(http.StatusOK, gin.H{"violation": false})
			return
		}
		outcome := eng.ReportViolation(c, moderation.Report{
			UserID:       req.UserID,
			Description:  verdict.Description,
			TextContent:  req.Text,
			ImageContent: req.ImageURL,
		})
		if outcome.RecordStatus == moderation.RecordStatusError {
			c.JSON(http.StatusInternalServerError, gin.H{"violation": true, "outcome": outcome})
			return
		}
		c.JSON(http.StatusOK, gin.H{"violation": true, "outcome": outcome})
	}
}

func violationsHandler(rep repo.RepositoryInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		recs, err := rep.ListViolations(c, c.Param("id"), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, recs)
	}
}

func statusHandler(rep repo.RepositoryInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		banned, err := rep.IsBanned(c, c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"banned": banned})
	}
}
