package main

import (
	"context"
	"net/http"
	"sync"

	"github.com/AngeKano/repfi/config"
	"github.com/AngeKano/repfi/models"
	"github.com/AngeKano/repfi/utils"
	"github.com/AngeKano/repfi/workflow"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// comptableService is the slice of workflow.Service the routes call.
type comptableService interface {
	AssembleBatch(ctx context.Context, req workflow.AssembleRequest) (*workflow.BatchResult, error)
	TriggerETL(ctx context.Context, req workflow.TriggerRequest) (*workflow.TriggerResult, error)
	ListProcessingPeriods(ctx context.Context, caller utils.Caller, clientId string) ([]models.ComptablePeriod, error)
	ListPeriods(ctx context.Context, caller utils.Caller, clientId string) ([]models.ComptablePeriod, error)
	RetryFile(ctx context.Context, req workflow.RetryRequest) (*models.File, error)
	DownloadURL(ctx context.Context, caller utils.Caller, fileId string) (*workflow.DownloadLink, error)
}

// comptableAPI serves the comptable routes. The service is installed once the database and
// Redis are connected; until then every route answers 503.
type comptableAPI struct {
	mu     sync.RWMutex
	svc    comptableService
	logger *logrus.Logger
}

func newComptableAPI(logger *logrus.Logger) *comptableAPI {
	return &comptableAPI{logger: logger}
}

func (a *comptableAPI) setService(svc comptableService) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.svc = svc
}

func (a *comptableAPI) service() comptableService {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.svc
}

func (a *comptableAPI) register(r gin.IRouter) {
	files := r.Group("/api/files")
	files.Use(a.requireReady(), requireCaller())
	files.POST("/comptable/upload", a.uploadComptable)
	files.POST("/comptable/trigger-etl", a.triggerETL)
	files.GET("/comptable/trigger-etl", a.listProcessing)
	files.GET("/comptable/periods", a.listPeriods)
	files.PUT("/:fileId/retry", a.retryFile)
	files.GET("/download/:fileId", a.download)
}

func (a *comptableAPI) requireReady() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.service() == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service not ready"})
			return
		}
		c.Next()
	}
}

func requireCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetCallerFromContext(c.Request.Context()); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func callerOf(c *gin.Context) utils.Caller {
	caller, _ := utils.GetCallerFromContext(c.Request.Context())
	return caller
}

func correlationOf(c *gin.Context) string {
	cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
	return cid
}

// renderError writes a workflow error as {"error", "code", "details"}.
func (a *comptableAPI) renderError(c *gin.Context, funcName string, err error) {
	werr := workflow.AsError(err)
	status := werr.HTTPStatus()
	if status >= http.StatusInternalServerError && a.logger != nil {
		config.LogError(a.logger, "Handlers", funcName, werr.Message, gin.H{"code": werr.Code, "correlation_id": correlationOf(c)}, err)
	}
	body := gin.H{"error": werr.Message, "code": werr.Code}
	if len(werr.Details) > 0 {
		body["details"] = werr.Details
	}
	c.JSON(status, body)
}

func (a *comptableAPI) uploadComptable(c *gin.Context) {
	clientId, files, err := readComptableUpload(c)
	if err != nil {
		a.renderError(c, "uploadComptable", err)
		return
	}
	result, err := a.service().AssembleBatch(c.Request.Context(), workflow.AssembleRequest{
		ClientId:      clientId,
		Caller:        callerOf(c),
		CorrelationId: correlationOf(c),
		Files:         files,
	})
	if err != nil {
		a.renderError(c, "uploadComptable", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":       "comptable files uploaded",
		"batchId":       result.BatchId,
		"storagePrefix": result.StoragePrefix,
		"period": gin.H{
			"start": result.Period.PeriodStart,
			"end":   result.Period.PeriodEnd,
			"year":  result.Period.Year,
		},
		"files":           result.Files,
		"comptablePeriod": result.Period,
	})
}

type triggerETLRequest struct {
	BatchId string `json:"batchId" binding:"required,uuid"`
}

func (a *comptableAPI) triggerETL(c *gin.Context) {
	var req triggerETLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request",
			"code":    workflow.CodeInvalidRequest,
			"details": utils.ProcessValidationErrors(err),
		})
		return
	}
	result, err := a.service().TriggerETL(c.Request.Context(), workflow.TriggerRequest{
		BatchId:       req.BatchId,
		Caller:        callerOf(c),
		CorrelationId: correlationOf(c),
	})
	if err != nil {
		a.renderError(c, "triggerETL", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":       "ETL processing triggered",
		"batchId":       req.BatchId,
		"dagRunId":      result.DagRunId,
		"status":        models.ProcessingStatusProcessing,
		"storagePrefix": result.StoragePrefix,
		"filesCount":    result.FilesCount,
		"period": gin.H{
			"start": result.Period.PeriodStart,
			"end":   result.Period.PeriodEnd,
		},
	})
}

func (a *comptableAPI) listProcessing(c *gin.Context) {
	periods, err := a.service().ListProcessingPeriods(c.Request.Context(), callerOf(c), c.Query("clientId"))
	if err != nil {
		a.renderError(c, "listProcessing", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"processingPeriods": periods})
}

func (a *comptableAPI) listPeriods(c *gin.Context) {
	periods, err := a.service().ListPeriods(c.Request.Context(), callerOf(c), c.Query("clientId"))
	if err != nil {
		a.renderError(c, "listPeriods", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"periods": periods})
}

func (a *comptableAPI) retryFile(c *gin.Context) {
	file, err := a.service().RetryFile(c.Request.Context(), workflow.RetryRequest{
		FileId:        c.Param("fileId"),
		Caller:        callerOf(c),
		CorrelationId: correlationOf(c),
	})
	if err != nil {
		a.renderError(c, "retryFile", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "file recovered", "file": file})
}

func (a *comptableAPI) download(c *gin.Context) {
	link, err := a.service().DownloadURL(c.Request.Context(), callerOf(c), c.Param("fileId"))
	if err != nil {
		a.renderError(c, "download", err)
		return
	}
	c.JSON(http.StatusOK, link)
}
