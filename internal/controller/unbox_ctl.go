package controller

import (
	"github.com/gin-gonic/gin"

	"blindbox_dev_v1_202608/internal/api/dto"
	"blindbox_dev_v1_202608/internal/middleware"
	"blindbox_dev_v1_202608/internal/service"
)

// ==================== 控制器 ====================

// UnboxController 开盒控制器（买家侧）
type UnboxController struct {
	unboxService *service.UnboxService
}

func NewUnboxController(unboxService *service.UnboxService) *UnboxController {
	return &UnboxController{unboxService: unboxService}
}

// ==================== API 方法 ====================

// Unbox 开盒
// @Summary 开启一个已购盲盒，抽出具体物品
// @Tags Unbox
// @Produce json
// @Param id path int true "用户盲盒ID"
// @Success 200 {object} dto.UnboxResultResponse
// @Router /api/customer-boxes/{id}/unbox [post]
func (ctrl *UnboxController) Unbox(c *gin.Context) {
	customerBoxID, ok := pathID(c, "id")
	if !ok {
		return
	}

	userID := middleware.GetUserID(c)
	result, err := ctrl.unboxService.Unbox(c.Request.Context(), userID, customerBoxID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

// ListCustomerBoxes 用户盲盒列表
// @Summary 查询当前用户的已购盲盒
// @Tags Unbox
// @Param only_unopened query bool false "仅未开的" default(true)
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} dto.CustomerBoxListResponse
// @Router /api/customer-boxes [get]
func (ctrl *UnboxController) ListCustomerBoxes(c *gin.Context) {
	var req dto.ListCustomerBoxesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondBadRequest(c, "参数错误: "+err.Error())
		return
	}

	userID := middleware.GetUserID(c)
	result, err := ctrl.unboxService.ListCustomerBoxes(c.Request.Context(), userID, req.OnlyUnopened, req.Page, req.PageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}
