package controller

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"blindbox_dev_v1_202608/internal/api/dto"
	"blindbox_dev_v1_202608/internal/middleware"
	"blindbox_dev_v1_202608/internal/repository"
	"blindbox_dev_v1_202608/internal/service"
)

// ==================== 控制器 ====================

// BlindBoxController 盲盒管理控制器（卖家 + 审核员）
type BlindBoxController struct {
	boxService  *service.BlindBoxService
	probService *service.ProbabilityService
}

func NewBlindBoxController(boxService *service.BlindBoxService, probService *service.ProbabilityService) *BlindBoxController {
	return &BlindBoxController{boxService: boxService, probService: probService}
}

// ==================== API 方法 ====================

// CreateBlindBox 创建盲盒
// @Summary 卖家创建盲盒（草稿态）
// @Tags BlindBox
// @Accept json
// @Produce json
// @Param body body dto.CreateBlindBoxRequest true "创建请求"
// @Success 201 {object} dto.BlindBoxDetailResponse
// @Router /api/blind-boxes [post]
func (ctrl *BlindBoxController) CreateBlindBox(c *gin.Context) {
	var req dto.CreateBlindBoxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "参数错误: "+err.Error())
		return
	}

	sellerID := middleware.GetUserID(c)
	result, err := ctrl.boxService.CreateBlindBox(c.Request.Context(), sellerID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, result)
}

// AddItems 批量添加 item
// @Summary 向盲盒添加 item 并重算掉落概率
// @Tags BlindBox
// @Accept json
// @Param id path int true "盲盒ID"
// @Param body body dto.AddItemsRequest true "item 列表"
// @Success 200 {object} dto.BlindBoxDetailResponse
// @Router /api/blind-boxes/{id}/items [post]
func (ctrl *BlindBoxController) AddItems(c *gin.Context) {
	boxID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.AddItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "参数错误: "+err.Error())
		return
	}

	sellerID := middleware.GetUserID(c)
	result, err := ctrl.boxService.AddItems(c.Request.Context(), sellerID, boxID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

// RemoveItem 移除 item
// @Summary 从盲盒移除 item 并重算掉落概率
// @Tags BlindBox
// @Param item_id path int true "itemID"
// @Success 200 {object} dto.BlindBoxDetailResponse
// @Router /api/blind-boxes/items/{item_id} [delete]
func (ctrl *BlindBoxController) RemoveItem(c *gin.Context) {
	itemID, ok := pathID(c, "item_id")
	if !ok {
		return
	}

	sellerID := middleware.GetUserID(c)
	result, err := ctrl.boxService.RemoveItem(c.Request.Context(), sellerID, itemID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

// ClearItems 清空 item
// @Summary 清空盲盒全部 item
// @Tags BlindBox
// @Param id path int true "盲盒ID"
// @Success 200 {object} dto.BlindBoxDetailResponse
// @Router /api/blind-boxes/{id}/items [delete]
func (ctrl *BlindBoxController) ClearItems(c *gin.Context) {
	boxID, ok := pathID(c, "id")
	if !ok {
		return
	}

	sellerID := middleware.GetUserID(c)
	result, err := ctrl.boxService.ClearItems(c.Request.Context(), sellerID, boxID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

// ComputeDropRates 重算掉落概率
// @Summary 按当前 item 构成重算并保存掉落概率
// @Tags BlindBox
// @Param id path int true "盲盒ID"
// @Success 200 {array} dto.BlindBoxItemVO
// @Router /api/blind-boxes/{id}/drop-rates [post]
func (ctrl *BlindBoxController) ComputeDropRates(c *gin.Context) {
	boxID, ok := pathID(c, "id")
	if !ok {
		return
	}

	sellerID := middleware.GetUserID(c)
	items, err := ctrl.boxService.ComputeDropRates(c.Request.Context(), sellerID, boxID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, items)
}

// SubmitForApproval 提交审核
// @Summary 提交盲盒进入审核队列
// @Tags BlindBox
// @Param id path int true "盲盒ID"
// @Success 200 {object} dto.BlindBoxDetailResponse
// @Router /api/blind-boxes/{id}/submit [post]
func (ctrl *BlindBoxController) SubmitForApproval(c *gin.Context) {
	boxID, ok := pathID(c, "id")
	if !ok {
		return
	}

	sellerID := middleware.GetUserID(c)
	result, err := ctrl.boxService.SubmitForApproval(c.Request.Context(), sellerID, boxID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

// ReviewBlindBox 审核盲盒
// @Summary 审核员通过或驳回盲盒
// @Tags BlindBox
// @Accept json
// @Param id path int true "盲盒ID"
// @Param body body dto.ReviewRequest true "审核结论"
// @Success 200 {object} dto.BlindBoxDetailResponse
// @Router /api/blind-boxes/{id}/review [post]
func (ctrl *BlindBoxController) ReviewBlindBox(c *gin.Context) {
	boxID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req dto.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "参数错误: "+err.Error())
		return
	}

	reviewerID := middleware.GetUserID(c)
	result, err := ctrl.boxService.ReviewBlindBox(c.Request.Context(), reviewerID, boxID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

// GetBlindBox 盲盒详情
// @Summary 获取盲盒详情（含 item 与掉落概率）
// @Tags BlindBox
// @Param id path int true "盲盒ID"
// @Success 200 {object} dto.BlindBoxDetailResponse
// @Router /api/blind-boxes/{id} [get]
func (ctrl *BlindBoxController) GetBlindBox(c *gin.Context) {
	boxID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := ctrl.boxService.GetBlindBoxByID(c.Request.Context(), boxID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

// ListBlindBoxes 盲盒列表
// @Summary 按条件分页查询盲盒
// @Tags BlindBox
// @Param seller_id query int false "卖家ID"
// @Param status query string false "状态筛选"
// @Param keyword query string false "名称关键词"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} dto.BlindBoxListResponse
// @Router /api/blind-boxes [get]
func (ctrl *BlindBoxController) ListBlindBoxes(c *gin.Context) {
	var req dto.ListBlindBoxesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondBadRequest(c, "参数错误: "+err.Error())
		return
	}

	filter := repository.BlindBoxFilter{
		SellerID: req.SellerID,
		Status:   req.Status,
		Keyword:  req.Keyword,
		MinPrice: req.MinPrice,
		MaxPrice: req.MaxPrice,
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	if req.ReleaseDateFrom != "" {
		from, err := time.Parse(time.RFC3339, req.ReleaseDateFrom)
		if err != nil {
			respondBadRequest(c, "release_date_from 时间格式错误，应为 RFC3339")
			return
		}
		filter.ReleaseDateFrom = from
	}
	if req.ReleaseDateTo != "" {
		to, err := time.Parse(time.RFC3339, req.ReleaseDateTo)
		if err != nil {
			respondBadRequest(c, "release_date_to 时间格式错误，应为 RFC3339")
			return
		}
		filter.ReleaseDateTo = to
	}

	result, err := ctrl.boxService.ListBlindBoxes(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

// GetProbabilityTable 当前生效概率表
// @Summary 获取盲盒当前生效的概率表（审批过的配置）
// @Tags Probability
// @Param id path int true "盲盒ID"
// @Success 200 {object} dto.ProbabilityTableResponse
// @Router /api/blind-boxes/{id}/probabilities [get]
func (ctrl *BlindBoxController) GetProbabilityTable(c *gin.Context) {
	boxID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := ctrl.probService.CurrentTable(c.Request.Context(), boxID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}

// GetProbabilityHistory item 概率历史
// @Summary 获取 item 的全部历史概率窗口
// @Tags Probability
// @Param item_id path int true "itemID"
// @Success 200 {array} dto.ProbabilityConfigVO
// @Router /api/blind-boxes/items/{item_id}/probability-history [get]
func (ctrl *BlindBoxController) GetProbabilityHistory(c *gin.Context) {
	itemID, ok := pathID(c, "item_id")
	if !ok {
		return
	}

	history, err := ctrl.probService.HistoryByItem(c.Request.Context(), itemID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, history)
}

// ==================== 辅助函数 ====================

// pathID 解析路径中的数字 ID，非法时直接写 400 响应
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondBadRequest(c, "无效的 "+name)
		return 0, false
	}
	return id, true
}
