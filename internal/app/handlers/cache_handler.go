package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"eval-cache/internal/app/middleware"
	"eval-cache/internal/domain/models"
	"eval-cache/internal/domain/services"
	"eval-cache/pkg/logger"
	"eval-cache/pkg/status"
)

// CacheHandler 评估结果缓存的 HTTP 处理器
type CacheHandler struct {
	service services.CacheService
	logger  logger.Logger
}

// NewCacheHandler 创建缓存处理器
func NewCacheHandler(service services.CacheService, log logger.Logger) *CacheHandler {
	if log == nil {
		log = logger.GetDefault()
	}
	return &CacheHandler{
		service: service,
		logger:  log,
	}
}

// APIResponse 错误响应格式
type APIResponse struct {
	Success   bool   `json:"success"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorDetail 错误详情
type ErrorDetail struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// SaveRequest 写入请求。respond 是 response 的兼容别名，两者同时出现时以 response 为准。
type SaveRequest struct {
	Request  map[string]any `json:"request"`
	Response map[string]any `json:"response"`
	Respond  map[string]any `json:"respond"`
}

// payload 返回实际要写入的结果
func (r *SaveRequest) payload() map[string]any {
	if r.Response != nil {
		return r.Response
	}
	return r.Respond
}

// LookupCache 查询缓存
// POST /v1/evaluate/cache
func (h *CacheHandler) LookupCache(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := middleware.GetRequestID(c)

	var key map[string]any
	if err := bindJSON(c, &key); err != nil {
		h.logger.WarnContext(ctx, "缓存查询请求解析失败", "request_id", requestID, "error", err.Error())
		h.respondWithError(c, status.ErrCodeInvalidParam, "请求参数格式错误", err.Error())
		return
	}
	if key == nil {
		h.respondWithError(c, status.ErrCodeInvalidParam, "请求参数格式错误", "request body must be a JSON object")
		return
	}

	startTime := time.Now()
	result, err := h.service.Lookup(ctx, key)
	duration := time.Since(startTime).Milliseconds()
	if err != nil {
		h.logger.ErrorContext(ctx, "缓存查询失败",
			"request_id", requestID,
			"duration_ms", duration,
			"error", err.Error())
		h.respondWithServiceError(c, err, "缓存查询失败")
		return
	}

	h.logger.InfoContext(ctx, "缓存查询完成",
		"request_id", requestID,
		"duration_ms", duration,
		"cached", result.Hit)

	c.JSON(http.StatusOK, result)
}

// SaveResult 写入计算结果
// POST /v1/evaluate/save
func (h *CacheHandler) SaveResult(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := middleware.GetRequestID(c)

	var req SaveRequest
	if err := bindJSON(c, &req); err != nil {
		h.logger.WarnContext(ctx, "缓存写入请求解析失败", "request_id", requestID, "error", err.Error())
		h.respondWithError(c, status.ErrCodeInvalidParam, "请求参数格式错误", err.Error())
		return
	}
	if err := validateSaveRequest(&req); err != nil {
		h.respondWithError(c, status.ErrCodeInvalidParam, "请求参数验证失败", err.Error())
		return
	}

	startTime := time.Now()
	result, err := h.service.Save(ctx, req.Request, req.payload())
	duration := time.Since(startTime).Milliseconds()
	if err != nil {
		h.logger.ErrorContext(ctx, "缓存写入失败",
			"request_id", requestID,
			"duration_ms", duration,
			"error", err.Error())
		h.respondWithServiceError(c, err, "缓存写入失败")
		return
	}

	h.logger.InfoContext(ctx, "缓存写入完成",
		"request_id", requestID,
		"duration_ms", duration,
		"id", result.ID)

	c.JSON(http.StatusOK, result)
}

// GetEntry 根据ID获取缓存项，不计入命中
// GET /v1/evaluate/entries/:id
func (h *CacheHandler) GetEntry(c *gin.Context) {
	ctx := c.Request.Context()
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		h.respondWithError(c, status.ErrCodeInvalidParam, "缺少id参数", "")
		return
	}

	entry, err := h.service.Get(ctx, id)
	if err != nil {
		h.respondWithServiceError(c, err, "缓存项查询失败")
		return
	}
	c.JSON(http.StatusOK, entry)
}

// GetStatistics 获取缓存统计信息
// GET /v1/evaluate/statistics
func (h *CacheHandler) GetStatistics(c *gin.Context) {
	stats, err := h.service.Statistics(c.Request.Context())
	if err != nil {
		h.respondWithServiceError(c, err, "缓存统计查询失败")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// HealthCheck 健康检查，存储不可用时返回 503
// GET /v1/evaluate/health
func (h *CacheHandler) HealthCheck(c *gin.Context) {
	health := h.service.Health(c.Request.Context())
	code := http.StatusOK
	if !health.Healthy {
		h.logger.WarnContext(c.Request.Context(), "健康检查失败", "store", health.Store, "error", health.Error)
		code = status.ErrCodeUnavailable.HTTPStatus()
	}
	c.JSON(code, health)
}

// bindJSON 解析请求体。数值保留为 json.Number，超过 2^53 的整数不会因 float64 丢失精度
func bindJSON(c *gin.Context, obj any) error {
	if c.Request.Body == nil {
		return errors.New("request body is empty")
	}
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(obj); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// validateSaveRequest 验证写入请求
func validateSaveRequest(req *SaveRequest) error {
	if req.Request == nil {
		return &ValidationError{Field: "request", Message: "request is required"}
	}
	if req.payload() == nil {
		return &ValidationError{Field: "response", Message: "response is required"}
	}
	return nil
}

// ValidationError 验证错误
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// respondWithServiceError 按错误类型映射状态码
func (h *CacheHandler) respondWithServiceError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, models.ErrMalformedInput):
		h.respondWithError(c, status.ErrCodeInvalidParam, message, err.Error())
	case models.IsStorageError(err):
		// 命中条目在自增前被删除同样属于存储故障
		h.respondWithError(c, status.ErrCodeStorage, message, err.Error())
	case errors.Is(err, models.ErrEntryNotFound):
		h.respondWithError(c, status.ErrCodeNotFound, "缓存项不存在", err.Error())
	default:
		h.respondWithError(c, status.ErrCodeInternal, message, err.Error())
	}
}

// respondWithError 返回错误响应
func (h *CacheHandler) respondWithError(c *gin.Context, code status.StatusCode, message, detail string) {
	response := APIResponse{
		Success:   false,
		Code:      int(code),
		Message:   message,
		RequestID: middleware.GetRequestID(c),
		Timestamp: time.Now().Unix(),
	}

	if detail != "" {
		response.Data = ErrorDetail{
			Message: detail,
			Code:    code.String(),
		}
	}

	c.JSON(code.HTTPStatus(), response)
}
