package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"blindbox_dev_v1_202608/pkg/apperror"
)

// ==================== ComputeDropRates 测试 ====================

func TestComputeDropRates_WeightProportional(t *testing.T) {
	// 70/30 权重 + 5% 隐藏款：非隐藏款在 95% 池内按比例分
	specs := []DropRateSpec{
		{Weight: 70},
		{Weight: 30},
		{Weight: 1, IsSecret: true},
	}

	rates, err := ComputeDropRates(specs, DropRateOptions{SecretProbability: 5})
	if err != nil {
		t.Fatalf("ComputeDropRates() 出错: %v", err)
	}

	assert.Equal(t, 66.50, rates[0])
	assert.Equal(t, 28.50, rates[1])
	assert.Equal(t, 5.00, rates[2])
	assert.Equal(t, 100.00, SumDropRates(rates))
}

func TestComputeDropRates_SecretSplitEvenly(t *testing.T) {
	specs := []DropRateSpec{
		{Weight: 10},
		{Weight: 3, IsSecret: true},
		{Weight: 1, IsSecret: true},
	}

	rates, err := ComputeDropRates(specs, DropRateOptions{SecretProbability: 5})
	if err != nil {
		t.Fatalf("ComputeDropRates() 出错: %v", err)
	}

	// 隐藏款均分，与权重无关
	assert.Equal(t, 2.50, rates[1])
	assert.Equal(t, 2.50, rates[2])
	assert.Equal(t, 95.00, rates[0])
}

func TestComputeDropRates_ResidualGoesToHighestWeight(t *testing.T) {
	// 三等分出 33.33*3 = 99.99，残差 0.01 补给权重最高的非隐藏款
	specs := []DropRateSpec{
		{Weight: 1},
		{Weight: 1},
		{Weight: 1},
	}

	rates, err := ComputeDropRates(specs, DropRateOptions{})
	if err != nil {
		t.Fatalf("ComputeDropRates() 出错: %v", err)
	}

	assert.Equal(t, 100.00, SumDropRates(rates))
	assert.Equal(t, 33.34, rates[0])
	assert.Equal(t, 33.33, rates[1])
	assert.Equal(t, 33.33, rates[2])
}

func TestComputeDropRates_ZeroWeightItem(t *testing.T) {
	specs := []DropRateSpec{
		{Weight: 10},
		{Weight: 0}, // 展示但永远抽不中
	}

	rates, err := ComputeDropRates(specs, DropRateOptions{})
	if err != nil {
		t.Fatalf("ComputeDropRates() 出错: %v", err)
	}

	assert.Equal(t, 100.00, rates[0])
	assert.Equal(t, 0.00, rates[1])
}

func TestComputeDropRates_AllZeroWeightsEqualSplit(t *testing.T) {
	specs := []DropRateSpec{
		{Weight: 0},
		{Weight: 0},
		{Weight: 0},
		{Weight: 0},
	}

	rates, err := ComputeDropRates(specs, DropRateOptions{})
	if err != nil {
		t.Fatalf("ComputeDropRates() 出错: %v", err)
	}

	for i, r := range rates {
		assert.Equal(t, 25.00, r, "第 %d 条应为均分", i)
	}
}

func TestComputeDropRates_SingleItem(t *testing.T) {
	rates, err := ComputeDropRates([]DropRateSpec{{Weight: 7}}, DropRateOptions{})
	if err != nil {
		t.Fatalf("ComputeDropRates() 出错: %v", err)
	}
	assert.Equal(t, 100.00, rates[0])
}

func TestComputeDropRates_AllSecretRejected(t *testing.T) {
	specs := []DropRateSpec{
		{Weight: 1, IsSecret: true},
		{Weight: 1, IsSecret: true},
	}

	_, err := ComputeDropRates(specs, DropRateOptions{SecretProbability: 5})
	if !apperror.IsKind(err, apperror.KindValidation) {
		t.Fatalf("全隐藏款应返回校验错误，实际: %v", err)
	}

	// 显式允许时整个 100% 在隐藏款之间均分
	rates, err := ComputeDropRates(specs, DropRateOptions{SecretProbability: 5, AllowAllSecret: true})
	if err != nil {
		t.Fatalf("ComputeDropRates() 出错: %v", err)
	}
	assert.Equal(t, 50.00, rates[0])
	assert.Equal(t, 50.00, rates[1])
}

func TestComputeDropRates_EmptyRejected(t *testing.T) {
	_, err := ComputeDropRates(nil, DropRateOptions{})
	if !apperror.IsKind(err, apperror.KindValidation) {
		t.Fatalf("空列表应返回校验错误，实际: %v", err)
	}
}

// TestComputeDropRates_SumInvariant 不同构成下合计都必须恰好 100.00
func TestComputeDropRates_SumInvariant(t *testing.T) {
	cases := [][]DropRateSpec{
		{{Weight: 1}, {Weight: 2}, {Weight: 3}},
		{{Weight: 7}, {Weight: 7}, {Weight: 7}, {Weight: 7}, {Weight: 7}, {Weight: 7}, {Weight: 7}},
		{{Weight: 99.7}, {Weight: 0.3}},
		{{Weight: 1}, {Weight: 1, IsSecret: true}},
		{{Weight: 5}, {Weight: 3}, {Weight: 1, IsSecret: true}, {Weight: 1, IsSecret: true}, {Weight: 1, IsSecret: true}},
		{{Weight: 0}, {Weight: 0}, {Weight: 1, IsSecret: true}},
	}

	for i, specs := range cases {
		rates, err := ComputeDropRates(specs, DropRateOptions{SecretProbability: 5})
		if err != nil {
			t.Fatalf("用例 %d 出错: %v", i, err)
		}
		if sum := SumDropRates(rates); sum != 100.00 {
			t.Errorf("用例 %d 合计 = %.2f, want 100.00 (rates=%v)", i, sum, rates)
		}
	}
}

func TestRatesSumTo100_Tolerance(t *testing.T) {
	assert.True(t, RatesSumTo100([]float64{50, 50}, 0.01))
	assert.True(t, RatesSumTo100([]float64{50, 49.99}, 0.01))
	assert.False(t, RatesSumTo100([]float64{50, 49}, 0.01))
}
