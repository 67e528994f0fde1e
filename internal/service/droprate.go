package service

import (
	"math"

	"blindbox_dev_v1_202608/pkg/apperror"
)

// ==================== 掉落概率计算 ====================

// DropRateSpec 参与概率计算的一条 item
type DropRateSpec struct {
	Weight   float64
	IsSecret bool
}

// DropRateOptions 计算选项
type DropRateOptions struct {
	// SecretProbability 隐藏款整体概率（百分比），在隐藏款 item 间均分
	SecretProbability float64
	// AllowAllSecret 允许全部 item 都是隐藏款（默认视为配置错误）
	AllowAllSecret bool
}

// ComputeDropRates 按稀有度权重计算每条 item 的掉落概率（百分比，两位小数）
//
// 规则：
//  1. 隐藏款整体占 SecretProbability，在隐藏款 item 间均分；
//  2. 其余 (100 - SecretProbability) 按权重比例分给非隐藏款；
//  3. 权重为 0 的 item 概率为 0，仍然展示但永远抽不中；
//  4. 非隐藏款权重合计为 0 时退化为均分；
//  5. 四舍五入到两位小数后的残差，补给权重最高的非隐藏款 item，
//     保证合计恰好 100.00。
//
// 返回值与入参顺序一一对应。计算结果必须原样持久化，
// 审核与抽取环节不得背着卖家重算。
func ComputeDropRates(specs []DropRateSpec, opts DropRateOptions) ([]float64, error) {
	if len(specs) == 0 {
		return nil, apperror.Validation("概率计算失败", "item 列表不能为空")
	}

	var secretIdx, normalIdx []int
	for i, s := range specs {
		if s.IsSecret {
			secretIdx = append(secretIdx, i)
		} else {
			normalIdx = append(normalIdx, i)
		}
	}

	secretPool := 0.0
	if len(secretIdx) > 0 {
		secretPool = opts.SecretProbability
	}

	if len(normalIdx) == 0 {
		if !opts.AllowAllSecret {
			return nil, apperror.Validation("概率计算失败", "盲盒不能只包含隐藏款 item")
		}
		// 全隐藏款：整个 100% 在隐藏款之间均分
		secretPool = 100
	}

	rates := make([]float64, len(specs))

	// 隐藏款均分
	if len(secretIdx) > 0 {
		share := round2(secretPool / float64(len(secretIdx)))
		for _, i := range secretIdx {
			rates[i] = share
		}
	}

	// 非隐藏款按权重比例分配剩余池
	if len(normalIdx) > 0 {
		pool := 100 - secretPool

		var totalWeight float64
		for _, i := range normalIdx {
			totalWeight += specs[i].Weight
		}

		if totalWeight <= 0 {
			// 权重全 0：均分兜底
			share := round2(pool / float64(len(normalIdx)))
			for _, i := range normalIdx {
				rates[i] = share
			}
		} else {
			for _, i := range normalIdx {
				rates[i] = round2(pool * specs[i].Weight / totalWeight)
			}
		}
	}

	// 残差补偿：合计必须恰好 100.00
	var sum float64
	for _, r := range rates {
		sum += r
	}
	residual := round2(100 - sum)
	if residual != 0 {
		target := residualTarget(specs, normalIdx, secretIdx)
		rates[target] = round2(rates[target] + residual)
	}

	return rates, nil
}

// residualTarget 残差落点：权重最高的非隐藏款，没有非隐藏款时取权重最高的隐藏款
func residualTarget(specs []DropRateSpec, normalIdx, secretIdx []int) int {
	candidates := normalIdx
	if len(candidates) == 0 {
		candidates = secretIdx
	}
	best := candidates[0]
	for _, i := range candidates[1:] {
		if specs[i].Weight > specs[best].Weight {
			best = i
		}
	}
	return best
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// SumDropRates 概率合计（两位小数）
func SumDropRates(rates []float64) float64 {
	var sum float64
	for _, r := range rates {
		sum += r
	}
	return round2(sum)
}

// RatesSumTo100 合计是否在 100.00 ± tolerance 内
func RatesSumTo100(rates []float64, tolerance float64) bool {
	return math.Abs(SumDropRates(rates)-100) <= tolerance
}
