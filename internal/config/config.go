package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	RechargeResult string `mapstructure:"recharge_result"`
}

// GatewayConfig 支付平台配置（本服务只消费回调，不发起下单）
type GatewayConfig struct {
	MerchantID  int    `mapstructure:"merchant_id"`
	MerchantKey string `mapstructure:"merchant_key"` // 签名密钥
}

type BusinessConfig struct {
	OrderExpireMinutes int   `mapstructure:"order_expire_minutes"` // 充值订单有效期
	SweepIntervalSec   int   `mapstructure:"sweep_interval_sec"`   // 过期订单清理间隔
	SweepBatchSize     int   `mapstructure:"sweep_batch_size"`
	PricePerImage      int64 `mapstructure:"price_per_image"` // 单张生成价格（分）
	MinRecharge        int64 `mapstructure:"min_recharge"`    // 最低充值金额（分）
	MaxRecharge        int64 `mapstructure:"max_recharge"`    // 最高充值金额（分）
	MaxRetryCount      int   `mapstructure:"max_retry_count"` // 事务消息最大重试次数
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	GlobalConfig = config
	return config
}
