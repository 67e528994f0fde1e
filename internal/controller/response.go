package controller

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"blindbox_dev_v1_202608/pkg/apperror"
)

// ==================== 统一响应 ====================

// respondOK 成功响应
func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "success",
		"data":    data,
	})
}

// respondCreated 创建成功响应
func respondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{
		"code":    0,
		"message": "success",
		"data":    data,
	})
}

// respondError 业务错误统一出口，按错误类别映射状态码
// 校验类错误把全部未通过的规则明细一并返回
func respondError(c *gin.Context, err error) {
	status := apperror.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("[API] %s %s 内部错误: %v", c.Request.Method, c.Request.URL.Path, err)
	}

	body := gin.H{
		"code":    status,
		"message": err.Error(),
	}

	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		body["kind"] = string(appErr.Kind)
		if len(appErr.Rules) > 0 {
			body["message"] = appErr.Message
			body["rules"] = appErr.Rules
		}
	}

	c.JSON(status, body)
}

// respondBadRequest 参数绑定失败
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":    400,
		"message": message,
	})
}
