package score

import (
	"testing"

	"github.com/opensource-finance/harrier/internal/domain"
)

func TestEstimateMetricsBuckets(t *testing.T) {
	accounts := []*domain.SuspiciousAccount{
		{AccountID: "A", SuspicionScore: 82},
		{AccountID: "B", SuspicionScore: 71},
		{AccountID: "C", SuspicionScore: 55},
		{AccountID: "D", SuspicionScore: 30},
	}
	m := EstimateMetrics(accounts, 3)

	if !m.Estimated {
		t.Error("metrics should be marked estimated")
	}
	if m.HighConfidenceCount != 2 || m.MediumConfidenceCount != 1 || m.LowConfidenceCount != 1 {
		t.Errorf("buckets = %d/%d/%d, want 2/1/1",
			m.HighConfidenceCount, m.MediumConfidenceCount, m.LowConfidenceCount)
	}
	// (2*0.85 + 1*0.65 + 1*0.40) / 4 = 0.6875
	if m.Precision != 68.75 {
		t.Errorf("precision = %v, want 68.75", m.Precision)
	}
	// 4 / max(100, 6) = 0.04
	if m.Recall != 4 {
		t.Errorf("recall = %v, want 4", m.Recall)
	}
	if m.AccountsFiltered != 3 {
		t.Errorf("accounts filtered = %d, want 3", m.AccountsFiltered)
	}
}

func TestEstimateMetricsEmpty(t *testing.T) {
	m := EstimateMetrics(nil, 0)
	if m.Precision != 0 || m.F1Score != 0 {
		t.Errorf("empty batch metrics = %+v, want zero precision and f1", m)
	}
	if m.Recall != 0 {
		t.Errorf("recall = %v, want 0", m.Recall)
	}
}

func TestEstimateMetricsRecallCapped(t *testing.T) {
	accounts := make([]*domain.SuspiciousAccount, 500)
	for i := range accounts {
		accounts[i] = &domain.SuspiciousAccount{SuspicionScore: 80}
	}
	m := EstimateMetrics(accounts, 0)
	// n/(n*1.5) = 0.667, under the 0.70 cap.
	if m.Recall != 66.67 {
		t.Errorf("recall = %v, want 66.67", m.Recall)
	}
}

func TestExactMetricsConfusionMatrix(t *testing.T) {
	accounts := []*domain.SuspiciousAccount{
		{AccountID: "A"},
		{AccountID: "B"},
		{AccountID: "C"},
	}
	truth := map[string]bool{"A": true, "B": true, "D": true}
	m := ExactMetrics(accounts, truth, 10)

	if m.TruePositives != 2 || m.FalsePositives != 1 || m.FalseNegatives != 1 || m.TrueNegatives != 6 {
		t.Errorf("confusion = %d/%d/%d/%d, want 2/1/1/6",
			m.TruePositives, m.FalsePositives, m.FalseNegatives, m.TrueNegatives)
	}
	if m.Precision != 66.67 || m.Recall != 66.67 {
		t.Errorf("precision/recall = %v/%v, want 66.67/66.67", m.Precision, m.Recall)
	}
	if m.Accuracy != 80 {
		t.Errorf("accuracy = %v, want 80", m.Accuracy)
	}
	if m.Estimated {
		t.Error("ground-truth metrics should not be marked estimated")
	}
}

func TestExactMetricsNothingDetected(t *testing.T) {
	truth := map[string]bool{"A": true}
	m := ExactMetrics(nil, truth, 5)
	if m.Precision != 0 || m.Recall != 0 || m.F1Score != 0 {
		t.Errorf("metrics = %+v, want zeros", m)
	}
	if m.TrueNegatives != 4 {
		t.Errorf("tn = %d, want 4", m.TrueNegatives)
	}
}
