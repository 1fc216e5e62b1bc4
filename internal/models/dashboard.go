package models

type DashboardOverview struct {
	TotalCompanies    int64            `json:"totalCompanies"`
	ApprovedCompanies int64            `json:"approvedCompanies"`
	PendingCompanies  int64            `json:"pendingCompanies"`
	TotalUsers        int64            `json:"totalUsers"`
	TotalTokensToday  int64            `json:"totalTokensToday"`
	ActiveQueues      int64            `json:"activeQueues"`
	DailyTraffic      map[string]int64 `json:"dailyTraffic,omitempty"`
	WeeklyTraffic     map[string]int64 `json:"weeklyTraffic,omitempty"`
	MonthlyTraffic    map[string]int64 `json:"monthlyTraffic,omitempty"`
	SystemHealth      string           `json:"systemHealth,omitempty"`
}
