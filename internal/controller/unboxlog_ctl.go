package controller

import (
	"github.com/gin-gonic/gin"

	"blindbox_dev_v1_202608/internal/api/dto"
	"blindbox_dev_v1_202608/internal/service"
)

// ==================== 控制器 ====================

// UnboxLogController 开盒审计日志控制器（运营/审核侧）
type UnboxLogController struct {
	logService *service.UnboxLogService
}

func NewUnboxLogController(logService *service.UnboxLogService) *UnboxLogController {
	return &UnboxLogController{logService: logService}
}

// ==================== API 方法 ====================

// ListLogs 审计日志查询
// @Summary 按用户/商品/盲盒/时间段分页查询开盒审计日志
// @Tags UnboxLog
// @Param user_id query int false "用户ID"
// @Param product_id query int false "商品ID"
// @Param blind_box_id query int false "盲盒ID"
// @Param from query string false "起始时间 RFC3339"
// @Param to query string false "截止时间 RFC3339"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} dto.UnboxLogListResponse
// @Router /api/unbox-logs [get]
func (ctrl *UnboxLogController) ListLogs(c *gin.Context) {
	var req dto.ListUnboxLogsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondBadRequest(c, "参数错误: "+err.Error())
		return
	}

	result, err := ctrl.logService.ListLogs(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}
