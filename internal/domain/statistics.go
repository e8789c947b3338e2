package domain

// Statistics 时间窗口内的邮件发送统计
//
// 四项计数统一按创建时间落在窗口内过滤。
type Statistics struct {
	TotalEmails   int         `json:"totalEmails"`
	SentEmails    int         `json:"sentEmails"`
	FailedEmails  int         `json:"failedEmails"`
	PendingEmails int         `json:"pendingEmails"`
	DailyStats    []DailyStat `json:"dailyStats"`
}

// DailyStat 按日历日期和状态分组的计数，仅包含出现过的组合
type DailyStat struct {
	Date   string `json:"date"` // YYYY-MM-DD
	Status Status `json:"status"`
	Count  int    `json:"count"`
}
