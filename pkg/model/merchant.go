package model

import (
	"time"
)

type MerchantID string

// Merchant is a business entity shown on the dashboard. Metrics are the
// inputs consumed by skills; the pipeline never writes them back.
type Merchant struct {
	ID       MerchantID `json:"id" yaml:"id" firestore:"id"`
	Name     string     `json:"name" yaml:"name" firestore:"name"`
	Category string     `json:"category" yaml:"category" firestore:"category"`
	Metrics  Metrics    `json:"metrics" yaml:"metrics" firestore:"metrics"`

	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at" firestore:"updated_at"`
}

// Metrics is a snapshot of operating indicators for a merchant.
type Metrics struct {
	MonthlyRevenue   float64 `json:"monthly_revenue" yaml:"monthly_revenue" firestore:"monthly_revenue"`
	RevenueGrowth    float64 `json:"revenue_growth" yaml:"revenue_growth" firestore:"revenue_growth"` // month over month, -1..+inf
	OrderCount       int     `json:"order_count" yaml:"order_count" firestore:"order_count"`
	Rating           float64 `json:"rating" yaml:"rating" firestore:"rating"` // 0..5
	ComplaintRate    float64 `json:"complaint_rate" yaml:"complaint_rate" firestore:"complaint_rate"`
	RefundRate       float64 `json:"refund_rate" yaml:"refund_rate" firestore:"refund_rate"`
	DaysSinceLastPay int     `json:"days_since_last_pay" yaml:"days_since_last_pay" firestore:"days_since_last_pay"`
}

type CaseID string

// Case is a reference case of a past merchant problem and what fixed it.
type Case struct {
	ID       CaseID   `json:"id" yaml:"id" firestore:"id"`
	Title    string   `json:"title" yaml:"title" firestore:"title"`
	Category string   `json:"category" yaml:"category" firestore:"category"`
	Signals  []string `json:"signals" yaml:"signals" firestore:"signals"` // risk codes the case addresses
	Action   string   `json:"action" yaml:"action" firestore:"action"`
	Outcome  string   `json:"outcome" yaml:"outcome" firestore:"outcome"`
}
