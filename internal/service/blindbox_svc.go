package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"blindbox_dev_v1_202608/internal/api/dto"
	"blindbox_dev_v1_202608/internal/model"
	"blindbox_dev_v1_202608/internal/repository"
	"blindbox_dev_v1_202608/pkg/apperror"
)

// ==================== 外部协作方接口 ====================
// 卖家/分类/通知/缓存都属于外部系统，这里只定义窄契约

// Clock 时间源，显式注入方便测试回放
type Clock interface {
	Now() time.Time
}

// SystemClock 真实时钟
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// SellerDirectory 卖家目录（身份与认证状态）
type SellerDirectory interface {
	IsVerifiedSeller(ctx context.Context, sellerID int64) (bool, error)
}

// CategoryDirectory 分类目录（只做存在性校验）
type CategoryDirectory interface {
	Exists(ctx context.Context, categoryID int64) (bool, error)
}

// Notifier 通知协作方，审核结果与缺货提醒走这里
type Notifier interface {
	NotifyBoxApproved(ctx context.Context, sellerID int64, boxName string) error
	NotifyBoxRejected(ctx context.Context, sellerID int64, boxName, reason string) error
	NotifyItemOutOfStock(ctx context.Context, sellerID int64, boxName, productName string) error
}

// DetailCache 读穿缓存，盒子详情与概率表用
// 任何审核状态流转或库存变化都要失效对应 key
type DetailCache interface {
	Get(key string) (string, bool)
	Set(key string, value string, ttl time.Duration)
	Delete(key string)
}

// ==================== 服务实现 ====================

// 提交审核时概率合计允许的误差
const dropRateTolerance = 0.01

// 审批通过后概率窗口默认有效期
const probabilityWindowTTL = 365 * 24 * time.Hour

// BlindBoxService 盲盒服务：编目（算概率）+ 审核状态机
type BlindBoxService struct {
	boxRepo   repository.BlindBoxRepository
	itemRepo  repository.BlindBoxItemRepository
	reviewUow *repository.ReviewUnitOfWork

	sellers    SellerDirectory
	categories CategoryDirectory
	notifier   Notifier
	cache      DetailCache
	clock      Clock
}

// NewBlindBoxService 创建盲盒服务
func NewBlindBoxService(
	boxRepo repository.BlindBoxRepository,
	itemRepo repository.BlindBoxItemRepository,
	reviewUow *repository.ReviewUnitOfWork,
	sellers SellerDirectory,
	categories CategoryDirectory,
	notifier Notifier,
	cache DetailCache,
	clock Clock,
) *BlindBoxService {
	return &BlindBoxService{
		boxRepo:    boxRepo,
		itemRepo:   itemRepo,
		reviewUow:  reviewUow,
		sellers:    sellers,
		categories: categories,
		notifier:   notifier,
		cache:      cache,
		clock:      clock,
	}
}

// ==================== 创建与编目 ====================

// CreateBlindBox 卖家创建盲盒，初始状态 Draft
func (s *BlindBoxService) CreateBlindBox(ctx context.Context, sellerID int64, req *dto.CreateBlindBoxRequest) (*dto.BlindBoxDetailResponse, error) {
	verified, err := s.sellers.IsVerifiedSeller(ctx, sellerID)
	if err != nil {
		return nil, apperror.Internal("查询卖家认证状态失败", err)
	}
	if !verified {
		return nil, apperror.Forbidden("卖家未通过认证，不能创建盲盒")
	}

	exists, err := s.categories.Exists(ctx, req.CategoryID)
	if err != nil {
		return nil, apperror.Internal("查询分类失败", err)
	}
	if !exists {
		return nil, apperror.Validation("创建盲盒失败", "分类不存在")
	}

	if req.HasSecretItem && (req.SecretProbability <= 0 || req.SecretProbability >= 100) {
		return nil, apperror.Validation("创建盲盒失败", "隐藏款概率必须在 (0, 100) 之间")
	}

	divisor := req.PriceDivisor
	if divisor <= 0 {
		divisor = 100
	}

	box := &model.BlindBox{
		SellerID:          sellerID,
		CategoryID:        req.CategoryID,
		Name:              req.Name,
		Description:       req.Description,
		PriceAmount:       req.PriceAmount,
		PriceDivisor:      divisor,
		CurrencyCode:      req.CurrencyCode,
		TotalQuantity:     req.TotalQuantity,
		HasSecretItem:     req.HasSecretItem,
		SecretProbability: req.SecretProbability,
		ImageUrls:         req.ImageUrls,
		Status:            model.BlindBoxStatusDraft,
		ReleaseDate:       req.ReleaseDate,
	}
	box.CreatedBy = sellerID

	if err := s.boxRepo.Create(ctx, box); err != nil {
		return nil, apperror.Internal("创建盲盒失败", err)
	}

	log.Printf("[BlindBox] 卖家 %d 创建盲盒 %d (%s)", sellerID, box.ID, box.Name)
	return s.GetBlindBoxByID(ctx, box.ID)
}

// AddItems 向 Draft 盲盒批量添加 item，并重算整盒掉落概率
func (s *BlindBoxService) AddItems(ctx context.Context, sellerID, boxID int64, req *dto.AddItemsRequest) (*dto.BlindBoxDetailResponse, error) {
	box, err := s.ownedEditableBox(ctx, sellerID, boxID)
	if err != nil {
		return nil, err
	}

	var rules []string
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			rules = append(rules, fmt.Sprintf("第 %d 条 item 数量必须大于 0", i+1))
		}
		switch item.Rarity {
		case model.RarityCommon, model.RarityRare, model.RarityEpic:
		case model.RaritySecret:
			if !box.HasSecretItem {
				rules = append(rules, fmt.Sprintf("第 %d 条 item 为隐藏款，但该盲盒未开启隐藏款", i+1))
			}
		default:
			rules = append(rules, fmt.Sprintf("第 %d 条 item 稀有度 %q 不合法", i+1, item.Rarity))
		}
		if item.Weight < 0 {
			rules = append(rules, fmt.Sprintf("第 %d 条 item 权重不能为负", i+1))
		}
	}
	if len(rules) > 0 {
		return nil, apperror.Validation("添加 item 失败", rules...)
	}

	entities := make([]model.BlindBoxItem, 0, len(req.Items))
	for _, item := range req.Items {
		entity := model.BlindBoxItem{
			BlindBoxID:  boxID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Rarity:      item.Rarity,
			Weight:      item.Weight,
			IsSecret:    item.Rarity == model.RaritySecret,
			IsActive:    true,
		}
		entity.CreatedBy = sellerID
		entities = append(entities, entity)
	}

	if err := s.itemRepo.CreateBatch(ctx, entities); err != nil {
		return nil, apperror.Internal("添加 item 失败", err)
	}

	// 添加后整盒概率重算并持久化
	if _, err := s.ComputeDropRates(ctx, sellerID, boxID); err != nil {
		return nil, err
	}

	s.invalidateBoxCache(boxID)
	log.Printf("[BlindBox] 盲盒 %d 添加 %d 条 item", boxID, len(entities))
	return s.GetBlindBoxByID(ctx, boxID)
}

// RemoveItem 从 Draft 盲盒移除 item（非 Draft 状态构成只增不减）
func (s *BlindBoxService) RemoveItem(ctx context.Context, sellerID, itemID int64) (*dto.BlindBoxDetailResponse, error) {
	item, err := s.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("item 不存在")
		}
		return nil, apperror.Internal("查询 item 失败", err)
	}

	box, err := s.ownedEditableBox(ctx, sellerID, item.BlindBoxID)
	if err != nil {
		return nil, err
	}

	if err := s.itemRepo.SoftRemove(ctx, itemID); err != nil {
		return nil, apperror.Internal("移除 item 失败", err)
	}

	// 剩余 item 概率重算
	if remaining, err := s.itemRepo.GetByBoxID(ctx, box.ID); err == nil && len(remaining) > 0 {
		if _, err := s.ComputeDropRates(ctx, sellerID, box.ID); err != nil {
			return nil, err
		}
	}

	s.invalidateBoxCache(box.ID)
	return s.GetBlindBoxByID(ctx, box.ID)
}

// ClearItems 清空盒子全部 item，重新编目用
func (s *BlindBoxService) ClearItems(ctx context.Context, sellerID, boxID int64) (*dto.BlindBoxDetailResponse, error) {
	box, err := s.ownedEditableBox(ctx, sellerID, boxID)
	if err != nil {
		return nil, err
	}

	if err := s.itemRepo.SoftRemoveByBoxID(ctx, box.ID); err != nil {
		return nil, apperror.Internal("清空 item 失败", err)
	}

	s.invalidateBoxCache(box.ID)
	log.Printf("[BlindBox] 盲盒 %d 清空 item", box.ID)
	return s.GetBlindBoxByID(ctx, box.ID)
}

// ComputeDropRates 按当前 item 权重重算掉落概率并持久化
// PendingApproval 状态下锁定，不允许重算
func (s *BlindBoxService) ComputeDropRates(ctx context.Context, sellerID, boxID int64) ([]dto.BlindBoxItemVO, error) {
	box, err := s.ownedBox(ctx, sellerID, boxID)
	if err != nil {
		return nil, err
	}
	if box.Status == model.BlindBoxStatusPendingApproval {
		return nil, apperror.State("盲盒审核中，概率已锁定")
	}

	items, err := s.itemRepo.GetByBoxID(ctx, boxID)
	if err != nil {
		return nil, apperror.Internal("查询 item 失败", err)
	}
	if len(items) == 0 {
		return nil, apperror.Validation("概率计算失败", "盲盒内没有 item")
	}

	specs := make([]DropRateSpec, len(items))
	for i, item := range items {
		specs[i] = DropRateSpec{Weight: item.Weight, IsSecret: item.IsSecret}
	}

	rates, err := ComputeDropRates(specs, DropRateOptions{
		SecretProbability: box.SecretProbability,
	})
	if err != nil {
		return nil, err
	}

	vos := make([]dto.BlindBoxItemVO, len(items))
	for i := range items {
		if err := s.itemRepo.UpdateFields(ctx, items[i].ID, map[string]interface{}{
			"drop_rate":  rates[i],
			"updated_by": sellerID,
		}); err != nil {
			return nil, apperror.Internal("保存掉落概率失败", err)
		}
		items[i].DropRate = rates[i]
		vos[i] = itemVO(items[i])
	}

	s.invalidateBoxCache(boxID)
	return vos, nil
}

// ==================== 审核状态机 ====================

// SubmitForApproval 提交审核：Draft/Rejected -> PendingApproval
// Approved 盲盒再次提交视为发起新一轮审批（概率变更走正式流程，不允许私改）
// 提交守卫违规项一次性全部返回
func (s *BlindBoxService) SubmitForApproval(ctx context.Context, sellerID, boxID int64) (*dto.BlindBoxDetailResponse, error) {
	box, err := s.ownedBox(ctx, sellerID, boxID)
	if err != nil {
		return nil, err
	}

	switch box.Status {
	case model.BlindBoxStatusDraft, model.BlindBoxStatusRejected, model.BlindBoxStatusApproved:
	default:
		return nil, apperror.State(fmt.Sprintf("状态 %s 不允许提交审核", box.Status))
	}

	verified, err := s.sellers.IsVerifiedSeller(ctx, sellerID)
	if err != nil {
		return nil, apperror.Internal("查询卖家认证状态失败", err)
	}
	if !verified {
		return nil, apperror.Forbidden("卖家未通过认证，不能提交审核")
	}

	items, err := s.itemRepo.GetByBoxID(ctx, boxID)
	if err != nil {
		return nil, apperror.Internal("查询 item 失败", err)
	}

	// 守卫规则全部检查完再返回，让卖家一次看到所有问题
	var rules []string
	if len(items) == 0 {
		rules = append(rules, "盲盒必须包含至少 1 条 item")
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			rules = append(rules, fmt.Sprintf("item %d (%s) 数量必须大于 0", item.ID, item.ProductName))
		}
	}
	if len(items) > 0 {
		rates := make([]float64, len(items))
		for i, item := range items {
			rates[i] = item.DropRate
		}
		if sum := SumDropRates(rates); !RatesSumTo100(rates, dropRateTolerance) {
			rules = append(rules, fmt.Sprintf("掉落概率合计 %.2f%%，与 100.00%% 相差 %.2f%%", sum, round2(100-sum)))
		}
	}
	if len(box.ImageUrls) == 0 {
		rules = append(rules, "盲盒必须包含展示图")
	}
	if len(rules) > 0 {
		return nil, apperror.Validation("提交审核失败", rules...)
	}

	if err := s.boxRepo.UpdateFields(ctx, boxID, map[string]interface{}{
		"status":     model.BlindBoxStatusPendingApproval,
		"updated_by": sellerID,
	}); err != nil {
		return nil, apperror.Internal("提交审核失败", err)
	}

	s.invalidateBoxCache(boxID)
	log.Printf("[BlindBox] 盲盒 %d 提交审核", boxID)
	return s.GetBlindBoxByID(ctx, boxID)
}

// ReviewBlindBox 审核：PendingApproval -> Approved / Rejected
// 通过时在账本里物化新概率窗口；如有旧窗口先关闭（取代，不改写）
func (s *BlindBoxService) ReviewBlindBox(ctx context.Context, reviewerID, boxID int64, req *dto.ReviewRequest) (*dto.BlindBoxDetailResponse, error) {
	box, err := s.boxRepo.GetByID(ctx, boxID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("盲盒不存在")
		}
		return nil, apperror.Internal("查询盲盒失败", err)
	}
	if box.Status != model.BlindBoxStatusPendingApproval {
		return nil, apperror.State(fmt.Sprintf("盲盒当前状态 %s，只有待审核盲盒可以审核", box.Status))
	}

	if req.Approve {
		if err := s.approve(ctx, reviewerID, box); err != nil {
			return nil, err
		}
	} else {
		if err := s.reject(ctx, reviewerID, box, req.RejectReason); err != nil {
			return nil, err
		}
	}

	s.invalidateBoxCache(boxID)
	return s.GetBlindBoxByID(ctx, boxID)
}

func (s *BlindBoxService) approve(ctx context.Context, reviewerID int64, box *model.BlindBox) error {
	now := s.clock.Now()

	err := s.reviewUow.Transaction(ctx, func(uow *repository.ReviewUnitOfWork) error {
		items, err := uow.Items.GetActiveByBoxID(ctx, box.ID)
		if err != nil {
			return apperror.Internal("查询 item 失败", err)
		}
		if len(items) == 0 {
			return apperror.Validation("审核失败", "盲盒内没有可用 item")
		}

		rates := make([]float64, len(items))
		for i, item := range items {
			rates[i] = item.DropRate
		}
		if !RatesSumTo100(rates, dropRateTolerance) {
			return apperror.Validation("审核失败",
				fmt.Sprintf("掉落概率合计 %.2f%%，不等于 100.00%%", SumDropRates(rates)))
		}

		// 取代旧窗口：关到 now，历史原样保留
		if closed, err := uow.Probabilities.CloseOpenWindows(ctx, box.ID, now); err != nil {
			return apperror.Internal("关闭旧概率窗口失败", err)
		} else if closed > 0 {
			log.Printf("[Review] 盲盒 %d 关闭旧概率窗口 %d 条", box.ID, closed)
		}

		configs := make([]model.ProbabilityConfig, 0, len(items))
		for _, item := range items {
			cfg := model.ProbabilityConfig{
				BlindBoxItemID: item.ID,
				BlindBoxID:     box.ID,
				Probability:    item.DropRate,
				EffectiveFrom:  now,
				EffectiveTo:    now.Add(probabilityWindowTTL),
				ApprovedBy:     reviewerID,
				ApprovedAt:     now,
			}
			cfg.CreatedBy = reviewerID
			configs = append(configs, cfg)
		}
		if err := uow.Probabilities.CreateBatch(ctx, configs); err != nil {
			return apperror.Internal("写入概率窗口失败", err)
		}

		return uow.Boxes.UpdateFields(ctx, box.ID, map[string]interface{}{
			"status":        model.BlindBoxStatusApproved,
			"reject_reason": "",
			"updated_by":    reviewerID,
		})
	})
	if err != nil {
		return err
	}

	// 通知失败不影响审核结果
	if err := s.notifier.NotifyBoxApproved(ctx, box.SellerID, box.Name); err != nil {
		log.Printf("[Review] 审核通过通知发送失败: box=%d err=%v", box.ID, err)
	}

	log.Printf("[Review] 盲盒 %d 审核通过，审核人 %d", box.ID, reviewerID)
	return nil
}

func (s *BlindBoxService) reject(ctx context.Context, reviewerID int64, box *model.BlindBox, reason string) error {
	if reason == "" {
		return apperror.Validation("驳回失败", "驳回原因是必填项")
	}
	now := s.clock.Now()

	err := s.reviewUow.Transaction(ctx, func(uow *repository.ReviewUnitOfWork) error {
		// 丢弃尚未生效的窗口；已生效的历史窗口不动
		if err := uow.Probabilities.DeleteFutureByBoxID(ctx, box.ID, now); err != nil {
			return apperror.Internal("清理未生效概率窗口失败", err)
		}
		return uow.Boxes.UpdateFields(ctx, box.ID, map[string]interface{}{
			"status":        model.BlindBoxStatusRejected,
			"reject_reason": reason,
			"updated_by":    reviewerID,
		})
	})
	if err != nil {
		return err
	}

	if err := s.notifier.NotifyBoxRejected(ctx, box.SellerID, box.Name, reason); err != nil {
		log.Printf("[Review] 驳回通知发送失败: box=%d err=%v", box.ID, err)
	}

	log.Printf("[Review] 盲盒 %d 被驳回，原因: %s", box.ID, reason)
	return nil
}

// ==================== 查询 ====================

const boxDetailCacheTTL = time.Hour

// GetBlindBoxByID 盲盒详情，读穿缓存
func (s *BlindBoxService) GetBlindBoxByID(ctx context.Context, boxID int64) (*dto.BlindBoxDetailResponse, error) {
	cacheKey := boxDetailCacheKey(boxID)
	if cached, ok := s.cache.Get(cacheKey); ok {
		var resp dto.BlindBoxDetailResponse
		if err := unmarshalCached(cached, &resp); err == nil {
			return &resp, nil
		}
	}

	box, err := s.boxRepo.GetByIDWithItems(ctx, boxID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("盲盒不存在")
		}
		return nil, apperror.Internal("查询盲盒失败", err)
	}

	resp := boxDetailResponse(box)
	if payload, err := marshalCached(resp); err == nil {
		s.cache.Set(cacheKey, payload, boxDetailCacheTTL)
	}
	return resp, nil
}

// ListBlindBoxes 盲盒列表
func (s *BlindBoxService) ListBlindBoxes(ctx context.Context, filter repository.BlindBoxFilter) (*dto.BlindBoxListResponse, error) {
	boxes, total, err := s.boxRepo.List(ctx, filter)
	if err != nil {
		return nil, apperror.Internal("查询盲盒列表失败", err)
	}

	items := make([]dto.BlindBoxDetailResponse, len(boxes))
	for i := range boxes {
		items[i] = *boxDetailResponse(&boxes[i])
	}
	return &dto.BlindBoxListResponse{Total: total, Items: items}, nil
}

// ==================== 内部辅助 ====================

// ownedBox 取出属于指定卖家的盒子
func (s *BlindBoxService) ownedBox(ctx context.Context, sellerID, boxID int64) (*model.BlindBox, error) {
	box, err := s.boxRepo.GetByID(ctx, boxID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("盲盒不存在")
		}
		return nil, apperror.Internal("查询盲盒失败", err)
	}
	if box.SellerID != sellerID {
		return nil, apperror.Forbidden("没有权限操作该盲盒")
	}
	return box, nil
}

// ownedEditableBox 取出可编辑的盒子
// Approved 盲盒只要还没卖出一件仍可改构成（改完要重走审批才生效）；
// 卖出第一件之后构成永久锁死
func (s *BlindBoxService) ownedEditableBox(ctx context.Context, sellerID, boxID int64) (*model.BlindBox, error) {
	box, err := s.ownedBox(ctx, sellerID, boxID)
	if err != nil {
		return nil, err
	}
	switch box.Status {
	case model.BlindBoxStatusDraft, model.BlindBoxStatusRejected:
		return box, nil
	case model.BlindBoxStatusApproved:
		sold, err := s.boxRepo.SoldCount(ctx, boxID)
		if err != nil {
			return nil, apperror.Internal("查询售出记录失败", err)
		}
		if sold > 0 {
			return nil, apperror.Conflict("盲盒已有售出记录，item 构成不允许修改")
		}
		return box, nil
	default:
		return nil, apperror.State(fmt.Sprintf("状态 %s 不允许编辑 item", box.Status))
	}
}

func (s *BlindBoxService) invalidateBoxCache(boxID int64) {
	s.cache.Delete(boxDetailCacheKey(boxID))
	s.cache.Delete(probabilityTableCacheKey(boxID))
}

func boxDetailCacheKey(boxID int64) string {
	return fmt.Sprintf("blindbox:detail:%d", boxID)
}

func probabilityTableCacheKey(boxID int64) string {
	return fmt.Sprintf("blindbox:probtable:%d", boxID)
}

func itemVO(item model.BlindBoxItem) dto.BlindBoxItemVO {
	return dto.BlindBoxItemVO{
		ItemID:      item.ID,
		ProductID:   item.ProductID,
		ProductName: item.ProductName,
		Quantity:    item.Quantity,
		DropRate:    item.DropRate,
		Rarity:      item.Rarity,
		Weight:      item.Weight,
		IsSecret:    item.IsSecret,
		IsActive:    item.IsActive,
	}
}

func boxDetailResponse(box *model.BlindBox) *dto.BlindBoxDetailResponse {
	items := make([]dto.BlindBoxItemVO, len(box.Items))
	for i, item := range box.Items {
		items[i] = itemVO(item)
	}
	return &dto.BlindBoxDetailResponse{
		ID:                box.ID,
		SellerID:          box.SellerID,
		CategoryID:        box.CategoryID,
		Name:              box.Name,
		Description:       box.Description,
		PriceAmount:       box.PriceAmount,
		PriceDivisor:      box.PriceDivisor,
		CurrencyCode:      box.CurrencyCode,
		TotalQuantity:     box.TotalQuantity,
		HasSecretItem:     box.HasSecretItem,
		SecretProbability: box.SecretProbability,
		ImageUrls:         box.ImageUrls,
		Status:            box.Status,
		RejectReason:      box.RejectReason,
		ReleaseDate:       box.ReleaseDate,
		Items:             items,
	}
}
