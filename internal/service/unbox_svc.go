package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"blindbox_dev_v1_202608/internal/api/dto"
	"blindbox_dev_v1_202608/internal/model"
	"blindbox_dev_v1_202608/internal/repository"
	"blindbox_dev_v1_202608/pkg/apperror"
)

// ==================== 随机源 ====================

// RandSource 抽取用随机源，显式注入，测试时可固定序列回放
// 客户端不可预测即可，不要求密码学强度
type RandSource interface {
	Float64() float64 // [0, 1)
}

// SystemRand 真实随机源
type SystemRand struct{}

func (SystemRand) Float64() float64 { return rand.Float64() }

// ==================== 服务实现 ====================

// 库存竞争时的重试上限：每次失败把售罄 item 从候选集剔除后重抽
const maxDrawAttempts = 3

// UnboxService 开盒引擎
// 一次开盒 = 权重随机抽取 + 条件扣库存 + 置开盒标记 + 写用户库存，单事务提交
type UnboxService struct {
	uow      *repository.UnboxUnitOfWork
	boxRepo  repository.BlindBoxRepository
	logSvc   *UnboxLogService
	notifier Notifier
	cache    DetailCache
	clock    Clock
	random   RandSource

	// 同一用户盒子的并发开盒请求串行化
	boxLocks sync.Map // customerBoxID -> *sync.Mutex
}

// NewUnboxService 创建开盒引擎
func NewUnboxService(
	uow *repository.UnboxUnitOfWork,
	boxRepo repository.BlindBoxRepository,
	logSvc *UnboxLogService,
	notifier Notifier,
	cache DetailCache,
	clock Clock,
	random RandSource,
) *UnboxService {
	return &UnboxService{
		uow:      uow,
		boxRepo:  boxRepo,
		logSvc:   logSvc,
		notifier: notifier,
		cache:    cache,
		clock:    clock,
		random:   random,
	}
}

// drawOutcome 事务内抽取结果
type drawOutcome struct {
	boxName   string
	item      model.BlindBoxItem
	config    model.ProbabilityConfig
	roll      float64
	inventory *model.InventoryItem
	table     []model.ProbabilityTableEntry
	soldOut   bool // 本次抽取把该 item 抽到 0
}

// Unbox 把一个已购未开的盲盒解析成一件具体物品
//
// 前置校验按顺序进行，每条一个独立错误：
//  1. 盒子存在            -> NOT_FOUND
//  2. 盒子属于当前用户     -> FORBIDDEN
//  3. 盒子未开过          -> CONFLICT
//  4. 所属盲盒已审批且在架 -> STATE
//  5. 存在可抽 item       -> EXHAUSTION / CONFIGURATION
//
// 随机数掷出之后的任何失败整体回滚，不留半截状态
func (s *UnboxService) Unbox(ctx context.Context, userID, customerBoxID int64) (*dto.UnboxResultResponse, error) {
	lock := s.lockFor(customerBoxID)
	lock.Lock()
	defer lock.Unlock()

	now := s.clock.Now()

	var outcome drawOutcome
	err := s.uow.Transaction(ctx, func(uow *repository.UnboxUnitOfWork) error {
		customerBox, err := uow.CustomerBoxes.GetByID(ctx, customerBoxID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound("盲盒不存在")
			}
			return apperror.Internal("查询用户盲盒失败", err)
		}
		if customerBox.UserID != userID {
			return apperror.Forbidden("没有权限开启该盲盒")
		}
		if customerBox.IsOpened {
			return apperror.Conflict("盲盒已经开过了")
		}
		if customerBox.BlindBox == nil {
			return apperror.State("所属盲盒已下架")
		}
		if customerBox.BlindBox.Status != model.BlindBoxStatusApproved {
			return apperror.State(fmt.Sprintf("所属盲盒状态 %s，不允许开盒", customerBox.BlindBox.Status))
		}

		result, err := s.draw(ctx, uow, customerBox, now)
		if err != nil {
			return err
		}
		result.boxName = customerBox.BlindBox.Name

		// 单向置位；条件更新兜底并发重复开盒
		opened, err := uow.CustomerBoxes.MarkOpened(ctx, customerBoxID, now)
		if err != nil {
			return apperror.Internal("标记开盒失败", err)
		}
		if !opened {
			return apperror.Conflict("盲盒已经开过了")
		}

		inventory := &model.InventoryItem{
			UserID:              userID,
			ProductID:           result.item.ProductID,
			SourceCustomerBoxID: customerBoxID,
			ProductName:         result.item.ProductName,
			Rarity:              result.item.Rarity,
			Quantity:            1,
			Status:              "Available",
		}
		inventory.CreatedBy = userID
		if err := uow.Inventory.Create(ctx, inventory); err != nil {
			return apperror.Internal("写入用户库存失败", err)
		}

		result.inventory = inventory
		outcome = *result
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 提交之后才做的事：审计、缓存失效、缺货提醒。都不影响开盒结果
	s.writeAuditLog(ctx, userID, customerBoxID, now, &outcome)
	s.cache.Delete(boxDetailCacheKey(outcome.item.BlindBoxID))
	s.cache.Delete(probabilityTableCacheKey(outcome.item.BlindBoxID))

	if outcome.soldOut {
		box, err := s.boxRepo.GetByID(ctx, outcome.item.BlindBoxID)
		if err != nil {
			log.Printf("[Unbox] 缺货提醒查询盒子失败: box=%d err=%v", outcome.item.BlindBoxID, err)
		} else if err := s.notifier.NotifyItemOutOfStock(ctx, box.SellerID, box.Name, outcome.item.ProductName); err != nil {
			log.Printf("[Unbox] 缺货提醒发送失败: item=%d err=%v", outcome.item.ID, err)
		}
	}

	log.Printf("[Unbox] 用户 %d 开盒 %d 抽中商品 %d (%s)",
		userID, customerBoxID, outcome.item.ProductID, outcome.item.Rarity)

	return unboxResultResponse(customerBoxID, now, &outcome), nil
}

// draw 事务内权重随机抽取 + 条件扣库存
// 候选集只包含 quantity > 0 的 item，售罄 item 的概率质量在剩余候选上重归一化
func (s *UnboxService) draw(ctx context.Context, uow *repository.UnboxUnitOfWork, customerBox *model.CustomerBlindBox, now time.Time) (*drawOutcome, error) {
	items, err := uow.Items.GetActiveByBoxID(ctx, customerBox.BlindBoxID)
	if err != nil {
		return nil, apperror.Internal("查询 item 失败", err)
	}

	configs, err := uow.Probabilities.CurrentByBoxID(ctx, customerBox.BlindBoxID, now)
	if err != nil {
		return nil, apperror.Internal("查询概率窗口失败", err)
	}
	configByItem := make(map[int64]model.ProbabilityConfig, len(configs))
	for _, cfg := range configs {
		configByItem[cfg.BlindBoxItemID] = cfg
	}

	// 候选集：在售、有库存。有库存却没有生效配置 -> fail closed
	var eligible []model.BlindBoxItem
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		if _, ok := configByItem[item.ID]; !ok {
			return nil, apperror.Configuration(
				fmt.Sprintf("item %d (%s) 缺少生效的概率配置", item.ID, item.ProductName))
		}
		eligible = append(eligible, item)
	}
	if len(eligible) == 0 {
		return nil, apperror.Exhaustion("盒子里已经没有可抽的 item")
	}

	// 抽取时刻的完整概率表快照，审计凭据
	table := make([]model.ProbabilityTableEntry, 0, len(eligible))
	for _, item := range eligible {
		cfg := configByItem[item.ID]
		table = append(table, model.ProbabilityTableEntry{
			BlindBoxItemID: item.ID,
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Rarity:         item.Rarity,
			Probability:    cfg.Probability,
			Quantity:       item.Quantity,
			EffectiveFrom:  cfg.EffectiveFrom,
			EffectiveTo:    cfg.EffectiveTo,
			ApprovedBy:     cfg.ApprovedBy,
		})
	}

	for attempt := 0; attempt < maxDrawAttempts && len(eligible) > 0; attempt++ {
		idx, roll, ok := weightedPick(eligible, configByItem, s.random)
		if !ok {
			// 剩余候选概率全为 0，等同无可抽 item
			return nil, apperror.Exhaustion("剩余 item 概率全部为 0，无法抽取")
		}

		selected := eligible[idx]
		decremented, err := uow.Items.DecrementQuantity(ctx, selected.ID)
		if err != nil {
			return nil, apperror.Internal("扣减库存失败", err)
		}
		if !decremented {
			// 并发抽取把最后一件抽走了，剔除后在缩小的候选集上重抽
			log.Printf("[Unbox] item %d 库存被并发抽空，第 %d 次重抽", selected.ID, attempt+1)
			eligible = append(eligible[:idx], eligible[idx+1:]...)
			continue
		}

		// 售罄按扣减后的真实库存判定，并发各扣一件时事务视角的旧值会漏报
		refreshed, err := uow.Items.GetByID(ctx, selected.ID)
		if err != nil {
			return nil, apperror.Internal("查询 item 失败", err)
		}

		return &drawOutcome{
			item:    selected,
			config:  configByItem[selected.ID],
			roll:    roll,
			table:   table,
			soldOut: refreshed.Quantity == 0,
		}, nil
	}

	return nil, apperror.Exhaustion("可抽 item 已被并发抽空")
}

// weightedPick 累积权重随机：掷 [0, total) 落在哪个桶选哪个
func weightedPick(eligible []model.BlindBoxItem, configByItem map[int64]model.ProbabilityConfig, random RandSource) (int, float64, bool) {
	var total float64
	for _, item := range eligible {
		total += configByItem[item.ID].Probability
	}
	if total <= 0 {
		return 0, 0, false
	}

	roll := random.Float64()
	scaled := roll * total

	var cumulative float64
	for i, item := range eligible {
		cumulative += configByItem[item.ID].Probability
		if scaled < cumulative {
			return i, roll, true
		}
	}
	// 浮点累加误差兜底：落到最后一个非零概率桶
	for i := len(eligible) - 1; i >= 0; i-- {
		if configByItem[eligible[i].ID].Probability > 0 {
			return i, roll, true
		}
	}
	return 0, 0, false
}

// writeAuditLog 写开盒审计日志
// 写失败不影响用户拿到的结果，进重试队列由定时任务补写
func (s *UnboxService) writeAuditLog(ctx context.Context, userID, customerBoxID int64, now time.Time, outcome *drawOutcome) {
	snapshot, err := marshalCached(outcome.table)
	if err != nil {
		log.Printf("[Unbox] 概率表快照序列化失败: box=%d err=%v", customerBoxID, err)
		snapshot = "[]"
	}

	entry := &model.BlindBoxUnboxLog{
		EventID:            uuid.NewString(),
		CustomerBlindBoxID: customerBoxID,
		UserID:             userID,
		BlindBoxID:         outcome.item.BlindBoxID,
		BlindBoxName:       outcome.boxName,
		ProductID:          outcome.item.ProductID,
		ProductName:        outcome.item.ProductName,
		Rarity:             outcome.item.Rarity,
		DropRate:           outcome.config.Probability,
		RollValue:          outcome.roll,
		ProbabilityTable:   datatypes.JSON(snapshot),
		UnboxedAt:          now,
		Reason:             "unbox",
	}
	entry.CreatedBy = userID

	s.logSvc.Record(ctx, entry)
}

func unboxResultResponse(customerBoxID int64, now time.Time, outcome *drawOutcome) *dto.UnboxResultResponse {
	table := make([]dto.ProbabilityTableVO, len(outcome.table))
	for i, row := range outcome.table {
		table[i] = dto.ProbabilityTableVO{
			ItemID:      row.BlindBoxItemID,
			ProductID:   row.ProductID,
			ProductName: row.ProductName,
			Rarity:      row.Rarity,
			Probability: row.Probability,
			Quantity:    row.Quantity,
		}
	}
	return &dto.UnboxResultResponse{
		CustomerBlindBoxID: customerBoxID,
		ProductID:          outcome.item.ProductID,
		ProductName:        outcome.item.ProductName,
		Rarity:             outcome.item.Rarity,
		DropRate:           outcome.config.Probability,
		InventoryItemID:    outcome.inventory.ID,
		UnboxedAt:          now,
		ProbabilityTable:   table,
	}
}

// lockFor 每个用户盒子一把锁
func (s *UnboxService) lockFor(customerBoxID int64) *sync.Mutex {
	actual, _ := s.boxLocks.LoadOrStore(customerBoxID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// ==================== 用户盒子查询 ====================

// ListCustomerBoxes 用户已购盲盒列表
func (s *UnboxService) ListCustomerBoxes(ctx context.Context, userID int64, onlyUnopened bool, page, pageSize int) (*dto.CustomerBoxListResponse, error) {
	boxes, total, err := s.uow.CustomerBoxes.ListByUser(ctx, userID, onlyUnopened, page, pageSize)
	if err != nil {
		return nil, apperror.Internal("查询用户盲盒失败", err)
	}

	items := make([]dto.CustomerBoxVO, len(boxes))
	for i, box := range boxes {
		vo := dto.CustomerBoxVO{
			ID:          box.ID,
			BlindBoxID:  box.BlindBoxID,
			IsOpened:    box.IsOpened,
			OpenedAt:    box.OpenedAt,
			PurchasedAt: box.CreatedAt,
		}
		if box.BlindBox != nil {
			vo.BlindBoxName = box.BlindBox.Name
		}
		items[i] = vo
	}
	return &dto.CustomerBoxListResponse{Total: total, Items: items}, nil
}
