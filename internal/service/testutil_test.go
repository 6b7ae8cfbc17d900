package service

import (
	"fmt"
	"testing"

	"imagepay/internal/config"
	"imagepay/internal/model"
	"imagepay/pkg/sign"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testMerchantKey = "test-secret-key"

// newTestDB 内存 sqlite，单连接串行化避免并发写锁冲突
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开 sqlite 失败: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层连接失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&model.Account{},
		&model.RechargeOrder{},
		&model.BalanceLog{},
		&model.ConsumptionLog{},
		&model.OutboxMessage{},
	)
	if err != nil {
		t.Fatalf("建表失败: %v", err)
	}

	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{RechargeResult: "imagepay.recharge.result.test"},
		},
		Gateway: config.GatewayConfig{
			MerchantID:  1000,
			MerchantKey: testMerchantKey,
		},
		Business: config.BusinessConfig{
			OrderExpireMinutes: 5,
			SweepIntervalSec:   30,
			SweepBatchSize:     100,
			PricePerImage:      20,
			MinRecharge:        100,
			MaxRecharge:        100000,
			MaxRetryCount:      5,
		},
	}
}

// signedNotifyParams 构造一份验签能通过的支付成功通知
func signedNotifyParams(orderNo, tradeNo string, amountCents int64) map[string]string {
	params := map[string]string{
		"pid":          "1000",
		"trade_no":     tradeNo,
		"out_trade_no": orderNo,
		"type":         "alipay",
		"money":        fmt.Sprintf("%.2f", float64(amountCents)/100),
		"trade_status": "TRADE_SUCCESS",
		"sign_type":    "MD5",
	}
	params["sign"] = sign.Sign(params, testMerchantKey)
	return params
}

// resign 参数改动后重新签名（Sign 本身会跳过 sign / sign_type 字段）
func resign(params map[string]string) string {
	return sign.Sign(params, testMerchantKey)
}
