package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"gorm.io/gorm"

	"blindbox_dev_v1_202608/internal/model"
	"blindbox_dev_v1_202608/internal/repository"
	"blindbox_dev_v1_202608/pkg/apperror"
	"blindbox_dev_v1_202608/pkg/utils"
)

// ==================== 测试基础设施 ====================

type unboxFixture struct {
	db       *gorm.DB
	svc      *UnboxService
	logSvc   *UnboxLogService
	notifier *mockNotifier
	clock    *fixedClock
	random   *seqRand
}

func newUnboxFixture(t *testing.T, rolls ...float64) *unboxFixture {
	db := setupServiceTestDB(t)
	if len(rolls) == 0 {
		rolls = []float64{0.5}
	}
	f := &unboxFixture{
		db:       db,
		logSvc:   NewUnboxLogService(repository.NewUnboxLogRepository(db)),
		notifier: &mockNotifier{},
		clock:    &fixedClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		random:   &seqRand{values: rolls},
	}
	f.svc = NewUnboxService(
		repository.NewUnboxUnitOfWork(db),
		repository.NewBlindBoxRepository(db),
		f.logSvc,
		f.notifier,
		utils.NewMemoryCache(),
		f.clock,
		f.random,
	)
	return f
}

// seedApprovedBox 落库一个 Approved 盒子，每条 item 带一个当前生效的概率窗口
func seedApprovedBox(t *testing.T, f *unboxFixture, items ...*model.BlindBoxItem) *model.BlindBox {
	t.Helper()
	box := &model.BlindBox{SellerID: 11, Name: "星河手办盲盒", Status: model.BlindBoxStatusApproved}
	if err := f.db.Create(box).Error; err != nil {
		t.Fatalf("seed 盒子失败: %v", err)
	}
	for _, item := range items {
		item.BlindBoxID = box.ID
		item.IsActive = true
		if err := f.db.Create(item).Error; err != nil {
			t.Fatalf("seed item 失败: %v", err)
		}
		cfg := &model.ProbabilityConfig{
			BlindBoxItemID: item.ID,
			BlindBoxID:     box.ID,
			Probability:    item.DropRate,
			EffectiveFrom:  f.clock.now.Add(-time.Hour),
			EffectiveTo:    f.clock.now.Add(365 * 24 * time.Hour),
			ApprovedBy:     9,
			ApprovedAt:     f.clock.now.Add(-time.Hour),
		}
		if err := f.db.Create(cfg).Error; err != nil {
			t.Fatalf("seed 概率窗口失败: %v", err)
		}
	}
	return box
}

func seedCustomerBox(t *testing.T, f *unboxFixture, boxID, userID int64) *model.CustomerBlindBox {
	t.Helper()
	cb := &model.CustomerBlindBox{UserID: userID, BlindBoxID: boxID, OrderDetailID: 5001}
	if err := f.db.Create(cb).Error; err != nil {
		t.Fatalf("seed 用户盲盒失败: %v", err)
	}
	return cb
}

// ==================== 开盒主流程 ====================

func TestUnbox_HappyPath(t *testing.T) {
	// 掷 0.5 -> 累积 90 之前，落在 A 桶
	f := newUnboxFixture(t, 0.5)
	box := seedApprovedBox(t, f,
		&model.BlindBoxItem{ProductID: 1001, ProductName: "常规款 A", Quantity: 2, Rarity: model.RarityCommon, DropRate: 90},
		&model.BlindBoxItem{ProductID: 1002, ProductName: "稀有款 B", Quantity: 3, Rarity: model.RarityRare, DropRate: 10},
	)
	cb := seedCustomerBox(t, f, box.ID, 101)

	resp, err := f.svc.Unbox(context.Background(), 101, cb.ID)
	if err != nil {
		t.Fatalf("开盒失败: %v", err)
	}
	if resp.ProductID != 1001 {
		t.Fatalf("抽中商品 = %d, want 1001", resp.ProductID)
	}
	if resp.DropRate != 90 {
		t.Errorf("记录的概率 = %.2f, want 90", resp.DropRate)
	}
	if !resp.UnboxedAt.Equal(f.clock.now) {
		t.Errorf("开盒时间 = %v, want %v", resp.UnboxedAt, f.clock.now)
	}

	// 库存扣了一件
	var item model.BlindBoxItem
	if err := f.db.Where("product_id = ?", 1001).First(&item).Error; err != nil {
		t.Fatalf("查询 item 失败: %v", err)
	}
	if item.Quantity != 1 {
		t.Errorf("扣减后库存 = %d, want 1", item.Quantity)
	}

	// 盒子单向置位
	var opened model.CustomerBlindBox
	if err := f.db.First(&opened, cb.ID).Error; err != nil {
		t.Fatalf("查询用户盲盒失败: %v", err)
	}
	if !opened.IsOpened || opened.OpenedAt == nil {
		t.Errorf("盒子应已置为开启: is_opened=%v opened_at=%v", opened.IsOpened, opened.OpenedAt)
	}

	// 物化到用户库存
	var inv model.InventoryItem
	if err := f.db.Where("source_customer_box_id = ?", cb.ID).First(&inv).Error; err != nil {
		t.Fatalf("查询用户库存失败: %v", err)
	}
	if inv.UserID != 101 || inv.ProductID != 1001 || inv.Quantity != 1 {
		t.Errorf("库存行不符: %+v", inv)
	}
	if inv.Status != "Available" {
		t.Errorf("库存状态 = %s, want Available", inv.Status)
	}

	// 还剩一件，不应触发缺货提醒
	if len(f.notifier.outOfStock) != 0 {
		t.Errorf("不应发送缺货提醒: %v", f.notifier.outOfStock)
	}
}

func TestUnbox_AuditLogCarriesSnapshot(t *testing.T) {
	f := newUnboxFixture(t, 0.5)
	box := seedApprovedBox(t, f,
		&model.BlindBoxItem{ProductID: 1001, ProductName: "常规款 A", Quantity: 2, Rarity: model.RarityCommon, DropRate: 90},
		&model.BlindBoxItem{ProductID: 1002, ProductName: "稀有款 B", Quantity: 3, Rarity: model.RarityRare, DropRate: 10},
	)
	cb := seedCustomerBox(t, f, box.ID, 101)

	if _, err := f.svc.Unbox(context.Background(), 101, cb.ID); err != nil {
		t.Fatalf("开盒失败: %v", err)
	}

	var logs []model.BlindBoxUnboxLog
	if err := f.db.Find(&logs).Error; err != nil {
		t.Fatalf("查询审计日志失败: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("审计日志数 = %d, want 1", len(logs))
	}

	entry := logs[0]
	if entry.EventID == "" {
		t.Error("EventID 不能为空")
	}
	if entry.RollValue != 0.5 {
		t.Errorf("RollValue = %v, want 0.5", entry.RollValue)
	}
	if entry.BlindBoxName != "星河手办盲盒" {
		t.Errorf("BlindBoxName = %q", entry.BlindBoxName)
	}
	if entry.ProductID != 1001 || entry.DropRate != 90 {
		t.Errorf("抽中记录不符: product=%d rate=%.2f", entry.ProductID, entry.DropRate)
	}

	// 快照是抽取时刻的完整概率表，争议复核凭据
	var table []model.ProbabilityTableEntry
	if err := json.Unmarshal(entry.ProbabilityTable, &table); err != nil {
		t.Fatalf("快照解析失败: %v", err)
	}
	if len(table) != 2 {
		t.Errorf("快照行数 = %d, want 2", len(table))
	}
}

// ==================== 前置校验 ====================

func TestUnbox_NotFound(t *testing.T) {
	f := newUnboxFixture(t)

	_, err := f.svc.Unbox(context.Background(), 101, 999)
	expectKind(t, err, apperror.KindNotFound)
}

func TestUnbox_NotOwner(t *testing.T) {
	f := newUnboxFixture(t, 0.5)
	box := seedApprovedBox(t, f,
		&model.BlindBoxItem{ProductID: 1001, ProductName: "A", Quantity: 2, Rarity: model.RarityCommon, DropRate: 100},
	)
	cb := seedCustomerBox(t, f, box.ID, 101)

	_, err := f.svc.Unbox(context.Background(), 202, cb.ID)
	expectKind(t, err, apperror.KindForbidden)
}

func TestUnbox_DoubleOpenConflict(t *testing.T) {
	f := newUnboxFixture(t, 0.5)
	box := seedApprovedBox(t, f,
		&model.BlindBoxItem{ProductID: 1001, ProductName: "A", Quantity: 5, Rarity: model.RarityCommon, DropRate: 100},
	)
	cb := seedCustomerBox(t, f, box.ID, 101)

	ctx := context.Background()
	if _, err := f.svc.Unbox(ctx, 101, cb.ID); err != nil {
		t.Fatalf("首次开盒失败: %v", err)
	}

	_, err := f.svc.Unbox(ctx, 101, cb.ID)
	expectKind(t, err, apperror.KindConflict)

	// 一个盒子最多产出一件：按来源盒子回查库存，First 只能命中那一条
	inv, err := repository.NewInventoryItemRepository(f.db).GetBySourceBoxID(ctx, cb.ID)
	if err != nil {
		t.Fatalf("按来源盒子查库存失败: %v", err)
	}
	if inv.ProductID != 1001 {
		t.Errorf("产出商品 = %d, want 1001", inv.ProductID)
	}
	var invCount int64
	f.db.Model(&model.InventoryItem{}).Where("source_customer_box_id = ?", cb.ID).Count(&invCount)
	if invCount != 1 {
		t.Errorf("库存行数 = %d, want 1", invCount)
	}
	var logCount int64
	f.db.Model(&model.BlindBoxUnboxLog{}).Where("customer_blind_box_id = ?", cb.ID).Count(&logCount)
	if logCount != 1 {
		t.Errorf("审计日志数 = %d, want 1", logCount)
	}
}

func TestUnbox_ParentNotApproved(t *testing.T) {
	f := newUnboxFixture(t)
	box := seedApprovedBox(t, f,
		&model.BlindBoxItem{ProductID: 1001, ProductName: "A", Quantity: 2, Rarity: model.RarityCommon, DropRate: 100},
	)
	f.db.Model(&model.BlindBox{}).Where("id = ?", box.ID).
		Update("status", model.BlindBoxStatusPendingApproval)
	cb := seedCustomerBox(t, f, box.ID, 101)

	_, err := f.svc.Unbox(context.Background(), 101, cb.ID)
	expectKind(t, err, apperror.KindState)
}

func TestUnbox_AllSoldOut(t *testing.T) {
	f := newUnboxFixture(t)
	box := seedApprovedBox(t, f,
		&model.BlindBoxItem{ProductID: 1001, ProductName: "A", Quantity: 0, Rarity: model.RarityCommon, DropRate: 100},
	)
	cb := seedCustomerBox(t, f, box.ID, 101)

	_, err := f.svc.Unbox(context.Background(), 101, cb.ID)
	expectKind(t, err, apperror.KindExhaustion)

	// 整体回滚，盒子保持未开启，可等补货后再开
	var got model.CustomerBlindBox
	f.db.First(&got, cb.ID)
	if got.IsOpened {
		t.Error("抽取失败后盒子不应被置为开启")
	}
}

func TestUnbox_MissingConfigFailsClosed(t *testing.T) {
	f := newUnboxFixture(t)
	box := seedApprovedBox(t, f,
		&model.BlindBoxItem{ProductID: 1001, ProductName: "A", Quantity: 5, Rarity: model.RarityCommon, DropRate: 100},
	)
	// 抹掉生效窗口：有库存却无配置，宁可拒绝开盒也不瞎抽
	f.db.Where("blind_box_id = ?", box.ID).Delete(&model.ProbabilityConfig{})
	cb := seedCustomerBox(t, f, box.ID, 101)

	_, err := f.svc.Unbox(context.Background(), 101, cb.ID)
	expectKind(t, err, apperror.KindConfiguration)

	var item model.BlindBoxItem
	f.db.Where("product_id = ?", 1001).First(&item)
	if item.Quantity != 5 {
		t.Errorf("失败路径不应扣库存: %d", item.Quantity)
	}
}

func TestUnbox_ZeroProbabilityEligible(t *testing.T) {
	f := newUnboxFixture(t)
	box := seedApprovedBox(t, f,
		&model.BlindBoxItem{ProductID: 1001, ProductName: "A", Quantity: 5, Rarity: model.RarityCommon, DropRate: 0},
	)
	cb := seedCustomerBox(t, f, box.ID, 101)

	// 候选 item 概率全为 0，没有可落的桶
	_, err := f.svc.Unbox(context.Background(), 101, cb.ID)
	expectKind(t, err, apperror.KindExhaustion)
}

// ==================== 重归一化与库存竞争 ====================

func TestUnbox_RenormalizesOverInStockItems(t *testing.T) {
	// A 概率 90 但已售罄，候选只剩 B/C 各 5。
	// 掷 0.4 -> 0.4 * 10 = 4，落在 B 桶（B 占前一半概率质量）
	f := newUnboxFixture(t, 0.4)
	box := seedApprovedBox(t, f,
		&model.BlindBoxItem{ProductID: 1001, ProductName: "大热款 A", Quantity: 0, Rarity: model.RarityCommon, DropRate: 90},
		&model.BlindBoxItem{ProductID: 1002, ProductName: "小众款 B", Quantity: 5, Rarity: model.RarityRare, DropRate: 5},
		&model.BlindBoxItem{ProductID: 1003, ProductName: "小众款 C", Quantity: 5, Rarity: model.RarityRare, DropRate: 5},
	)
	cb := seedCustomerBox(t, f, box.ID, 101)

	resp, err := f.svc.Unbox(context.Background(), 101, cb.ID)
	if err != nil {
		t.Fatalf("开盒失败: %v", err)
	}
	if resp.ProductID != 1002 {
		t.Errorf("抽中商品 = %d, want 1002（售罄 item 的概率质量在剩余候选上重归一化）", resp.ProductID)
	}

	// 快照只包含参与本次抽取的候选
	if len(resp.ProbabilityTable) != 2 {
		t.Errorf("快照行数 = %d, want 2", len(resp.ProbabilityTable))
	}
}

func TestUnbox_LastUnitTriggersOutOfStockNotice(t *testing.T) {
	// 掷 0.95 -> 累积越过 90，落在最后一件的 B 桶
	f := newUnboxFixture(t, 0.95)
	box := seedApprovedBox(t, f,
		&model.BlindBoxItem{ProductID: 1001, ProductName: "常规款 A", Quantity: 5, Rarity: model.RarityCommon, DropRate: 90},
		&model.BlindBoxItem{ProductID: 1002, ProductName: "稀有款 B", Quantity: 1, Rarity: model.RarityRare, DropRate: 10},
	)
	cb := seedCustomerBox(t, f, box.ID, 101)

	resp, err := f.svc.Unbox(context.Background(), 101, cb.ID)
	if err != nil {
		t.Fatalf("开盒失败: %v", err)
	}
	if resp.ProductID != 1002 {
		t.Fatalf("抽中商品 = %d, want 1002", resp.ProductID)
	}

	if len(f.notifier.outOfStock) != 1 || f.notifier.outOfStock[0] != "稀有款 B" {
		t.Errorf("最后一件抽完应发缺货提醒，实际: %v", f.notifier.outOfStock)
	}
}

func TestUnbox_OutOfStockNoticeOnlyAtZero(t *testing.T) {
	// 库存 2 连开两次：售罄按扣减后的库存判定，提醒只在归零那一次发
	f := newUnboxFixture(t, 0.5, 0.5)
	box := seedApprovedBox(t, f,
		&model.BlindBoxItem{ProductID: 1001, ProductName: "常规款 A", Quantity: 2, Rarity: model.RarityCommon, DropRate: 100},
	)
	first := seedCustomerBox(t, f, box.ID, 101)
	second := seedCustomerBox(t, f, box.ID, 102)

	ctx := context.Background()
	if _, err := f.svc.Unbox(ctx, 101, first.ID); err != nil {
		t.Fatalf("首次开盒失败: %v", err)
	}
	if len(f.notifier.outOfStock) != 0 {
		t.Fatalf("库存未归零不应发提醒，实际: %v", f.notifier.outOfStock)
	}

	if _, err := f.svc.Unbox(ctx, 102, second.ID); err != nil {
		t.Fatalf("第二次开盒失败: %v", err)
	}
	if len(f.notifier.outOfStock) != 1 || f.notifier.outOfStock[0] != "常规款 A" {
		t.Errorf("最后一件抽完应恰好发一次提醒，实际: %v", f.notifier.outOfStock)
	}
}

func TestUnbox_ScarceItemSingleWinner(t *testing.T) {
	// 只剩一件，两个盒子先后开：先到先得，后到 EXHAUSTION
	f := newUnboxFixture(t, 0.5, 0.5)
	box := seedApprovedBox(t, f,
		&model.BlindBoxItem{ProductID: 1001, ProductName: "绝版款", Quantity: 1, Rarity: model.RarityEpic, DropRate: 100},
	)
	first := seedCustomerBox(t, f, box.ID, 101)
	second := seedCustomerBox(t, f, box.ID, 102)

	ctx := context.Background()
	if _, err := f.svc.Unbox(ctx, 101, first.ID); err != nil {
		t.Fatalf("首个开盒失败: %v", err)
	}

	_, err := f.svc.Unbox(ctx, 102, second.ID)
	expectKind(t, err, apperror.KindExhaustion)

	// 绝不超卖：库存 0，全库只有一条产出
	var item model.BlindBoxItem
	f.db.Where("product_id = ?", 1001).First(&item)
	if item.Quantity != 0 {
		t.Errorf("库存 = %d, want 0", item.Quantity)
	}
	var invCount int64
	f.db.Model(&model.InventoryItem{}).Where("product_id = ?", 1001).Count(&invCount)
	if invCount != 1 {
		t.Errorf("产出件数 = %d, want 1", invCount)
	}
}

// ==================== 用户盒子查询 ====================

func TestListCustomerBoxes_OnlyUnopened(t *testing.T) {
	f := newUnboxFixture(t, 0.5)
	box := seedApprovedBox(t, f,
		&model.BlindBoxItem{ProductID: 1001, ProductName: "A", Quantity: 5, Rarity: model.RarityCommon, DropRate: 100},
	)
	opened := seedCustomerBox(t, f, box.ID, 101)
	seedCustomerBox(t, f, box.ID, 101)

	ctx := context.Background()
	if _, err := f.svc.Unbox(ctx, 101, opened.ID); err != nil {
		t.Fatalf("开盒失败: %v", err)
	}

	resp, err := f.svc.ListCustomerBoxes(ctx, 101, true, 1, 10)
	if err != nil {
		t.Fatalf("查询用户盲盒失败: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("未开盒数 = %d, want 1", resp.Total)
	}

	all, err := f.svc.ListCustomerBoxes(ctx, 101, false, 1, 10)
	if err != nil {
		t.Fatalf("查询用户盲盒失败: %v", err)
	}
	if all.Total != 2 {
		t.Errorf("全部盒子数 = %d, want 2", all.Total)
	}
	for _, vo := range all.Items {
		if vo.BlindBoxName != "星河手办盲盒" {
			t.Errorf("盒子名未关联: %+v", vo)
		}
	}
}
